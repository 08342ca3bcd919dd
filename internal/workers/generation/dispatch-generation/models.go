// internal/workers/generation/dispatch-generation/models.go
package dispatchgeneration

import "preset-workers/internal/common/validation"

type Input struct {
	Tier        string            `json:"tier"`
	ToolType    string            `json:"toolType"`
	SubjectRef  string            `json:"subjectRef"`
	ModifierRef string            `json:"modifierRef"`
	ImageURL    string            `json:"imageUrl"`
	Prompt      string            `json:"prompt"`
	CustomInput bool              `json:"customInput"`
	Params      map[string]string `json:"params"`
}

type Output struct {
	Success   bool   `json:"generationSuccess"`
	ResultURL string `json:"resultUrl"`
	RequestID string `json:"generationRequestId"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["toolType"],
	"properties": {
		"tier": {"type": "string", "maxLength": 64},
		"toolType": {"type": "string", "minLength": 1},
		"subjectRef": {"type": "string", "maxLength": 256},
		"modifierRef": {"type": "string", "maxLength": 256},
		"imageUrl": {"type": "string", "maxLength": 2048},
		"prompt": {"type": "string", "maxLength": 4000},
		"customInput": {"type": "boolean"},
		"params": {"type": "object", "additionalProperties": {"type": "string"}}
	}
}`)
