package templatestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"preset-workers/internal/common/database"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/internal/presets"
)

// maxSearchHits caps a single page. Tool catalogs stay well below it.
const maxSearchHits = 5000

// SearchSource reads records from an Elasticsearch index where each
// document is one raw template record plus a "tool" keyword field.
type SearchSource struct {
	es     *database.ElasticsearchClient
	logger logger.Logger
}

func NewSearchSource(es *database.ElasticsearchClient, log logger.Logger) *SearchSource {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SearchSource{es: es, logger: log}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// buildQuery filters on tool and accepts documents in the requested locale
// or with no locale at all.
func buildQuery(tool presets.ToolType, locale string) map[string]interface{} {
	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"tool": string(tool)}},
	}
	if locale != "" {
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"locale": locale}},
					map[string]interface{}{"bool": map[string]interface{}{
						"must_not": map[string]interface{}{"exists": map[string]interface{}{"field": "locale"}},
					}},
				},
				"minimum_should_match": 1,
			},
		})
	}

	return map[string]interface{}{
		"size":  maxSearchHits,
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filters}},
	}
}

// Fetch implements presets.Source.
func (s *SearchSource) Fetch(ctx context.Context, tool presets.ToolType, locale string) ([]presets.RawRecord, error) {
	start := time.Now()
	items, err := s.search(ctx, tool, locale)
	if err != nil {
		metrics.TemplateFetchDuration.WithLabelValues("elasticsearch", "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("template search %s: %w", tool, context.DeadlineExceeded)
		}
		return nil, err
	}
	metrics.TemplateFetchDuration.WithLabelValues("elasticsearch", "ok").Observe(time.Since(start).Seconds())

	records, invalid := toRecords(items, tool, s.logger)
	s.logger.Debug("templates searched", map[string]interface{}{
		"toolType": string(tool),
		"locale":   locale,
		"index":    s.es.Index,
		"records":  len(records),
		"invalid":  invalid,
	})
	return records, nil
}

func (s *SearchSource) search(ctx context.Context, tool presets.ToolType, locale string) ([]json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildQuery(tool, locale)); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	client := s.es.Client
	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(s.es.Index),
		client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("template search %s: %w", tool, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("template search %s: %s: %s", tool, res.Status(), string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]json.RawMessage, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return items, nil
}
