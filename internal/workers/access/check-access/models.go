// internal/workers/access/check-access/models.go
package checkaccess

import "preset-workers/internal/common/validation"

// Actions a tier can be checked for.
const (
	ActionResolve  = "resolve"
	ActionGenerate = "generate"
)

type Input struct {
	Tier        string `json:"tier"`
	Action      string `json:"action"`
	ToolType    string `json:"toolType"`
	SubjectRef  string `json:"subjectRef"`
	ModifierRef string `json:"modifierRef"`
	CustomInput bool   `json:"customInput"`
	Prompt      string `json:"prompt"`
}

type Output struct {
	Allowed      bool   `json:"allowed"`
	DenialReason string `json:"denialReason,omitempty"`
	Tier         string `json:"tier"`
	Action       string `json:"action"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["toolType"],
	"properties": {
		"tier": {"type": "string", "maxLength": 64},
		"action": {"type": "string", "enum": ["", "resolve", "generate"]},
		"toolType": {"type": "string", "minLength": 1},
		"subjectRef": {"type": "string", "maxLength": 256},
		"modifierRef": {"type": "string", "maxLength": 256},
		"customInput": {"type": "boolean"},
		"prompt": {"type": "string", "maxLength": 4000}
	}
}`)
