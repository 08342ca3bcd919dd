// internal/workers/catalog/resolve-preset/config.go
package resolvepreset

import (
	"time"

	"preset-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// DefaultLocale is used when the job carries no locale.
	DefaultLocale string
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:       10 * time.Second,
		DefaultLocale: "en",
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
	if len(cfg.Catalog.WarmLocales) > 0 {
		c.DefaultLocale = cfg.Catalog.WarmLocales[0]
	}
	return c
}
