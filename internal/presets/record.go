// Package presets resolves demo-tier tool selections onto pre-generated
// template results.
package presets

// ToolType names a tool in the tool registry.
type ToolType string

const (
	ToolAvatar     ToolType = "avatar"
	ToolRoom       ToolType = "room"
	ToolProduct    ToolType = "product"
	ToolTryOn      ToolType = "tryon"
	ToolBackground ToolType = "background"
)

// RawRecord is a template record as served by the template store. Unknown
// fields are ignored.
type RawRecord struct {
	ID                   string                 `json:"id"`
	Locale               string                 `json:"locale,omitempty"`
	InputImageURL        string                 `json:"input_image_url,omitempty"`
	ResultImageURL       string                 `json:"result_image_url,omitempty"`
	ResultWatermarkedURL string                 `json:"result_watermarked_url,omitempty"`
	ResultVideoURL       string                 `json:"result_video_url,omitempty"`
	Topic                string                 `json:"topic,omitempty"`
	Prompt               string                 `json:"prompt,omitempty"`
	PromptZh             string                 `json:"prompt_zh,omitempty"`
	InputParams          map[string]interface{} `json:"input_params,omitempty"`
}

// TemplateRecord is the normalized, read-only form of a RawRecord.
type TemplateRecord struct {
	ID                   string            `json:"id"`
	ToolType             ToolType          `json:"toolType"`
	SubjectRef           string            `json:"subjectRef"`
	ModifierRef          string            `json:"modifierRef,omitempty"`
	Locale               string            `json:"locale,omitempty"`
	InputURL             string            `json:"inputUrl,omitempty"`
	ResultURL            string            `json:"resultUrl,omitempty"`
	ResultWatermarkedURL string            `json:"resultWatermarkedUrl,omitempty"`
	TextPrimary          string            `json:"textPrimary,omitempty"`
	TextSecondary        string            `json:"textSecondary,omitempty"`
	Extras               map[string]string `json:"extras,omitempty"`
}

// Key returns the record's own dimension key.
func (r TemplateRecord) Key() DimensionKey {
	return NewDimensionKey(r.SubjectRef, r.ModifierRef, r.Locale)
}

// HasResult reports whether any result artifact has been generated.
func (r TemplateRecord) HasResult() bool {
	return r.ResultURL != "" || r.ResultWatermarkedURL != ""
}

// ResultFor picks the artifact URL for a tier: watermarked first when the tier
// prefers it, plain first otherwise, each falling back to the other.
func (r TemplateRecord) ResultFor(tier Tier) string {
	if tier.PrefersWatermark() {
		if r.ResultWatermarkedURL != "" {
			return r.ResultWatermarkedURL
		}
		return r.ResultURL
	}
	if r.ResultURL != "" {
		return r.ResultURL
	}
	return r.ResultWatermarkedURL
}

// Selection is the user's current choice on a tool page.
type Selection struct {
	ToolType    ToolType `json:"toolType"`
	SubjectRef  string   `json:"subjectRef"`
	ModifierRef string   `json:"modifierRef,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	// CustomInput is set when the user supplied free text or an upload
	// instead of picking a preset.
	CustomInput bool `json:"customInput,omitempty"`
}

// Key returns the dimension key of the selection.
func (s Selection) Key() DimensionKey {
	return NewDimensionKey(s.SubjectRef, s.ModifierRef, s.Locale)
}
