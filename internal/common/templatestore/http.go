package templatestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"preset-workers/internal/common/database"
	apphttp "preset-workers/internal/common/http"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/internal/presets"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "tmpl:"

// HTTPSource reads records from GET {base}/templates?tool=&locale=. When a
// cache is configured the raw payload is kept in Redis for CacheTTL.
type HTTPSource struct {
	client   *apphttp.Client
	baseURL  string
	apiKey   string
	cache    redis.Cmdable
	cacheTTL time.Duration
	logger   logger.Logger
}

type HTTPOption func(*HTTPSource)

// WithCache enables the Redis payload cache. A zero ttl leaves it disabled.
func WithCache(cache redis.Cmdable, ttl time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if cache != nil && ttl > 0 {
			s.cache = cache
			s.cacheTTL = ttl
		}
	}
}

func WithAPIKey(key string) HTTPOption {
	return func(s *HTTPSource) { s.apiKey = key }
}

func NewHTTPSource(client *apphttp.Client, baseURL string, log logger.Logger, opts ...HTTPOption) *HTTPSource {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	s := &HTTPSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(tool presets.ToolType, locale string) string {
	return cacheKeyPrefix + string(tool) + ":" + locale
}

// Fetch implements presets.Source.
func (s *HTTPSource) Fetch(ctx context.Context, tool presets.ToolType, locale string) ([]presets.RawRecord, error) {
	if payload, ok := s.cached(ctx, tool, locale); ok {
		items, err := decodePayload(payload)
		if err == nil {
			records, _ := toRecords(items, tool, s.logger)
			return records, nil
		}
		s.logger.Warn("cached template payload unreadable", map[string]interface{}{
			"toolType": string(tool),
			"locale":   locale,
			"error":    err.Error(),
		})
	}

	start := time.Now()
	payload, err := s.get(ctx, tool, locale)
	if err != nil {
		metrics.TemplateFetchDuration.WithLabelValues("http", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	items, err := decodePayload(payload)
	if err != nil {
		metrics.TemplateFetchDuration.WithLabelValues("http", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.TemplateFetchDuration.WithLabelValues("http", "ok").Observe(time.Since(start).Seconds())

	s.store(ctx, tool, locale, payload)

	records, invalid := toRecords(items, tool, s.logger)
	s.logger.Debug("templates fetched", map[string]interface{}{
		"toolType": string(tool),
		"locale":   locale,
		"records":  len(records),
		"invalid":  invalid,
	})
	return records, nil
}

func (s *HTTPSource) get(ctx context.Context, tool presets.ToolType, locale string) ([]byte, error) {
	query := url.Values{}
	query.Set("tool", string(tool))
	if locale != "" {
		query.Set("locale", locale)
	}
	endpoint := s.baseURL + "/templates?" + query.Encode()

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["X-API-Key"] = s.apiKey
	}

	payload, err := s.client.DoJSON(ctx, "GET", endpoint, headers, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("template store %s: %w", tool, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("template store %s: %w", tool, err)
	}
	return payload, nil
}

func (s *HTTPSource) cached(ctx context.Context, tool presets.ToolType, locale string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}

	start := time.Now()
	val, err := s.cache.Get(ctx, cacheKey(tool, locale)).Result()
	if err != nil {
		if !database.IsMiss(err) {
			s.logger.Warn("template cache read failed", map[string]interface{}{
				"toolType": string(tool),
				"locale":   locale,
				"error":    err.Error(),
			})
		}
		return nil, false
	}
	metrics.TemplateFetchDuration.WithLabelValues("cache", "ok").Observe(time.Since(start).Seconds())
	return []byte(val), true
}

func (s *HTTPSource) store(ctx context.Context, tool presets.ToolType, locale string, payload []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(tool, locale), string(payload), s.cacheTTL).Err(); err != nil {
		s.logger.Warn("template cache write failed", map[string]interface{}{
			"toolType": string(tool),
			"locale":   locale,
			"error":    err.Error(),
		})
	}
}

// Invalidate drops the cached payload so the next fetch hits the store.
func (s *HTTPSource) Invalidate(ctx context.Context, tool presets.ToolType, locale string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKey(tool, locale)).Err()
}
