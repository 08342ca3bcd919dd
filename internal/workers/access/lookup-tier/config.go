// internal/workers/access/lookup-tier/config.go
package lookuptier

import (
	"time"

	"preset-workers/internal/common/config"
)

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	// SubscriberPlans lists subscription plan names that map to the
	// subscriber tier. Anything else is demo.
	SubscriberPlans []string
	// RequireRecord fails the job with TIER_NOT_FOUND when the user has no
	// subscription row, instead of treating them as demo.
	RequireRecord bool
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:         10 * time.Second,
		CacheTTL:        5 * time.Minute,
		SubscriberPlans: []string{"basic", "premium", "enterprise", "subscriber"},
	}
}

func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	if cfg.Access.TierCacheTTL > 0 {
		c.CacheTTL = time.Duration(cfg.Access.TierCacheTTL) * time.Second
	}
	return c
}
