// internal/workers/generation/dispatch-generation/config.go
package dispatchgeneration

import (
	"time"

	"preset-workers/internal/common/config"
)

type Config struct {
	// Timeout covers every retry of one generation.
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{Timeout: 3 * time.Minute}
}

func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if wc, ok := cfg.Workers[TaskType]; ok && wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	} else if cfg.Generation.Timeout > 0 {
		c.Timeout = config.GetDuration(cfg.Generation.Timeout) * time.Duration(cfg.Generation.MaxRetries+1)
	}
	return c
}
