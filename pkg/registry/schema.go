// pkg/registry/schema.go
package registry

// ToolRegistry describes every tool whose presets can be resolved.
type ToolRegistry struct {
	Version     string        `json:"version"`
	LastUpdated string        `json:"lastUpdated"`
	Tools       []ToolProfile `json:"tools"`
}

// Result kinds.
const (
	ResultImage = "image"
	ResultVideo = "video"
)

// ToolProfile tells the dimension extractor where each axis lives in a raw
// template record and which values are tier-restricted.
type ToolProfile struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	ResultKind  string `json:"resultKind"`

	// Parameter names under input_params, checked in order.
	SubjectParams  []string `json:"subjectParams"`
	ModifierParams []string `json:"modifierParams"`
	// LocaleParam names an input_params field carrying the record locale
	// when the top-level locale is absent.
	LocaleParam string   `json:"localeParam,omitempty"`
	ExtraAxes   []string `json:"extraAxes,omitempty"`

	Locales             []string `json:"locales"`
	RestrictedModifiers []string `json:"restrictedModifiers,omitempty"`
	RestrictedSubjects  []string `json:"restrictedSubjects,omitempty"`
}
