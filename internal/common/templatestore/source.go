package templatestore

import (
	"fmt"
	"time"

	"preset-workers/internal/common/config"
	"preset-workers/internal/common/database"
	apphttp "preset-workers/internal/common/http"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/presets"

	"github.com/redis/go-redis/v9"
)

// Dependencies are the shared clients a source may need. Unused ones may
// be nil.
type Dependencies struct {
	Elasticsearch *database.ElasticsearchClient
	Cache         redis.Cmdable
	Logger        logger.Logger
}

// New picks the source named by cfg.Source.
func New(cfg config.TemplateStoreConfig, deps Dependencies) (presets.Source, error) {
	switch cfg.Source {
	case "", config.SourceHTTP:
		client := apphttp.NewClient(apphttp.Options{
			PreferIPv4: cfg.PreferIPv4,
			Timeout:    time.Duration(cfg.Timeout) * time.Millisecond,
		})
		return NewHTTPSource(client, cfg.BaseURL, deps.Logger,
			WithAPIKey(cfg.APIKey),
			WithCache(deps.Cache, time.Duration(cfg.CacheTTL)*time.Second),
		), nil

	case config.SourceElasticsearch:
		if deps.Elasticsearch == nil {
			return nil, fmt.Errorf("template store source %q needs an elasticsearch client", cfg.Source)
		}
		return NewSearchSource(deps.Elasticsearch, deps.Logger), nil

	default:
		return nil, fmt.Errorf("unknown template store source %q", cfg.Source)
	}
}
