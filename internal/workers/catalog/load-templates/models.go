// internal/workers/catalog/load-templates/models.go
package loadtemplates

import (
	"time"

	"preset-workers/internal/common/validation"
)

type Input struct {
	ToolType string `json:"toolType"`
	Locale   string `json:"locale"`
}

// Output reports the snapshot now being served for the pair. State is
// "ready" or "loadFailed"; on failure the previous snapshot, if any, keeps
// serving and its counts are reported.
type Output struct {
	State     string    `json:"state"`
	ToolType  string    `json:"toolType"`
	Locale    string    `json:"locale"`
	Records   int       `json:"records"`
	Keys      int       `json:"keys"`
	Skipped   int       `json:"skipped"`
	Seq       uint64    `json:"seq"`
	LoadedAt  time.Time `json:"loadedAt,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Error     string    `json:"error,omitempty"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["toolType"],
	"properties": {
		"toolType": {"type": "string", "minLength": 1},
		"locale": {"type": "string", "maxLength": 35}
	}
}`)
