// internal/workers/catalog/resolve-preset/models.go
package resolvepreset

import "preset-workers/internal/common/validation"

type Input struct {
	ToolType    string `json:"toolType"`
	SubjectRef  string `json:"subjectRef"`
	ModifierRef string `json:"modifierRef"`
	Locale      string `json:"locale"`
	CustomInput bool   `json:"customInput"`
	Tier        string `json:"tier"`
}

// Output is merged into the process as job variables. Denied selections
// complete with allowed=false and no status.
type Output struct {
	Allowed      bool   `json:"allowed"`
	DenialReason string `json:"denialReason,omitempty"`

	Status     string `json:"status,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	ResultURL  string `json:"resultUrl,omitempty"`
	InputURL   string `json:"inputUrl,omitempty"`
	Text       string `json:"text,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Message    string `json:"message,omitempty"`

	Locale     string `json:"locale,omitempty"`
	CatalogSeq uint64 `json:"catalogSeq,omitempty"`
	LoadError  string `json:"loadError,omitempty"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["toolType", "subjectRef"],
	"properties": {
		"toolType": {"type": "string", "minLength": 1},
		"subjectRef": {"type": "string", "maxLength": 256},
		"modifierRef": {"type": "string", "maxLength": 256},
		"locale": {"type": "string", "maxLength": 35},
		"customInput": {"type": "boolean"},
		"tier": {"type": "string", "maxLength": 64}
	}
}`)
