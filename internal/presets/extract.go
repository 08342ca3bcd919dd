package presets

import (
	"fmt"
	"strconv"
	"strings"

	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/pkg/registry"
)

// Skip reasons reported to metrics.
const (
	skipNoSubject = "no_subject"
)

// Extractor normalizes raw template records for one tool profile.
type Extractor struct {
	profile registry.ToolProfile
	logger  logger.Logger
}

func NewExtractor(profile registry.ToolProfile, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Extractor{profile: profile, logger: log}
}

// Extract normalizes one record. It returns false when no subject identity can
// be derived; the record is then dropped from the index.
func (e *Extractor) Extract(raw RawRecord) (TemplateRecord, bool) {
	return e.extract(raw, 0)
}

// ExtractAll normalizes a batch, returning the kept records and the number
// skipped. Records without an id get a surrogate that includes their position.
func (e *Extractor) ExtractAll(raws []RawRecord) ([]TemplateRecord, int) {
	out := make([]TemplateRecord, 0, len(raws))
	skipped := 0
	for i, raw := range raws {
		rec, ok := e.extract(raw, i)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped
}

func (e *Extractor) extract(raw RawRecord, ordinal int) (TemplateRecord, bool) {
	tool := ToolType(e.profile.Type)

	subject := firstParam(raw.InputParams, e.profile.SubjectParams)
	if subject == "" {
		subject = strings.TrimSpace(raw.InputImageURL)
	}
	if subject == "" {
		metrics.ExtractionSkipped.WithLabelValues(string(tool), skipNoSubject).Inc()
		e.logger.Debug("template record skipped", map[string]interface{}{
			"toolType": string(tool),
			"recordId": raw.ID,
			"ordinal":  ordinal,
			"reason":   skipNoSubject,
		})
		return TemplateRecord{}, false
	}

	modifier := firstParam(raw.InputParams, e.profile.ModifierParams)
	if modifier == "" {
		modifier = strings.TrimSpace(raw.Topic)
	}

	locale := raw.Locale
	if locale == "" && e.profile.LocaleParam != "" {
		locale = paramString(raw.InputParams[e.profile.LocaleParam])
	}
	locale = NormalizeLocale(locale)

	resultURL := raw.ResultImageURL
	if resultURL == "" {
		resultURL = raw.ResultVideoURL
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = fmt.Sprintf("%s:%s:%s:%s:%d", tool, subject, modifier, locale, ordinal)
	}

	var extras map[string]string
	for _, axis := range e.profile.ExtraAxes {
		if v := paramString(raw.InputParams[axis]); v != "" {
			if extras == nil {
				extras = make(map[string]string, len(e.profile.ExtraAxes))
			}
			extras[axis] = v
		}
	}

	return TemplateRecord{
		ID:                   id,
		ToolType:             tool,
		SubjectRef:           subject,
		ModifierRef:          modifier,
		Locale:               locale,
		InputURL:             raw.InputImageURL,
		ResultURL:            resultURL,
		ResultWatermarkedURL: raw.ResultWatermarkedURL,
		TextPrimary:          raw.Prompt,
		TextSecondary:        raw.PromptZh,
		Extras:               extras,
	}, true
}

func firstParam(params map[string]interface{}, names []string) string {
	for _, name := range names {
		if v := paramString(params[name]); v != "" {
			return v
		}
	}
	return ""
}

// paramString renders scalar JSON values; objects, arrays and null yield "".
func paramString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return ""
	}
}
