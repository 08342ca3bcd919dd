// Package templatestore fetches raw template records for the preset catalog
// from the HTTP template store or from an Elasticsearch index.
package templatestore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/internal/common/validation"
	"preset-workers/internal/presets"
)

// recordSchema is the minimum shape a record needs to be indexed. Every field
// is optional and may be null; records without an id get a surrogate one
// during extraction. Unknown fields are allowed.
var recordSchema = validation.MustCompile(`{
	"type": "object",
	"properties": {
		"id": {"type": ["string", "null"]},
		"locale": {"type": ["string", "null"]},
		"input_image_url": {"type": ["string", "null"]},
		"result_image_url": {"type": ["string", "null"]},
		"result_watermarked_url": {"type": ["string", "null"]},
		"result_video_url": {"type": ["string", "null"]},
		"topic": {"type": ["string", "null"]},
		"prompt": {"type": ["string", "null"]},
		"prompt_zh": {"type": ["string", "null"]},
		"input_params": {"type": ["object", "null"]}
	}
}`)

type envelope struct {
	Templates []json.RawMessage `json:"templates"`
}

// decodePayload accepts either a bare JSON array or {"templates": [...]}.
func decodePayload(payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty template payload")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode template array: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode template envelope: %w", err)
	}
	return env.Templates, nil
}

// toRecords validates every item and drops the ones that do not fit the
// record schema. It returns the kept records and the number dropped.
func toRecords(items []json.RawMessage, tool presets.ToolType, log logger.Logger) ([]presets.RawRecord, int) {
	records := make([]presets.RawRecord, 0, len(items))
	invalid := 0

	for i, item := range items {
		if result := recordSchema.ValidateJSON(item); !result.Valid {
			invalid++
			log.Debug("template record rejected", map[string]interface{}{
				"toolType": string(tool),
				"position": i,
				"errors":   result.GetErrorMessages(),
			})
			continue
		}

		var rec presets.RawRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			invalid++
			log.Debug("template record undecodable", map[string]interface{}{
				"toolType": string(tool),
				"position": i,
				"error":    err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	if invalid > 0 {
		metrics.ExtractionSkipped.WithLabelValues(string(tool), "invalid_schema").Add(float64(invalid))
	}
	return records, invalid
}
