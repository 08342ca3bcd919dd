package presets

import "strings"

// MatchStatus says how closely a resolved result matches the selection.
type MatchStatus string

const (
	StatusExact           MatchStatus = "exact"
	StatusFallbackPartial MatchStatus = "fallbackPartial"
	StatusFallbackAny     MatchStatus = "fallbackAny"
	StatusNoMatch         MatchStatus = "noMatch"
)

// NoMatchMessage is shown next to the echoed input preview.
const NoMatchMessage = "This combination has not been pre-generated yet"

// ResolvedResult is the outcome of Resolve. Record is nil for noMatch.
type ResolvedResult struct {
	Status    MatchStatus     `json:"status"`
	Record    *TemplateRecord `json:"record,omitempty"`
	ResultURL string          `json:"resultUrl,omitempty"`
}

// Found reports whether any artifact was resolved.
func (r ResolvedResult) Found() bool {
	return r.Status != StatusNoMatch && r.Status != ""
}

// Resolve maps a selection to the best cached artifact. Each step runs only
// when the previous one found no record with a usable result:
// exact key, same subject, same modifier, anything.
func Resolve(ix *CombinationIndex, sel Selection, tier Tier) ResolvedResult {
	sel = trimRefs(sel)
	locale := NormalizeLocale(sel.Locale)

	if rec, ok := firstUsable(ix.Lookup(sel.Key())); ok {
		return resolved(StatusExact, rec, tier)
	}
	// Records without a locale apply to every locale.
	if locale != "" {
		if rec, ok := firstUsable(ix.Lookup(NewDimensionKey(sel.SubjectRef, sel.ModifierRef, ""))); ok {
			return resolved(StatusExact, rec, tier)
		}
	}

	if rec, ok := bestUsable(ix.subjectRecords(sel.SubjectRef), locale); ok {
		return resolved(StatusFallbackPartial, rec, tier)
	}
	if rec, ok := bestUsable(ix.modifierRecords(sel.ModifierRef), locale); ok {
		return resolved(StatusFallbackPartial, rec, tier)
	}
	if rec, ok := bestUsable(ix.records(), locale); ok {
		return resolved(StatusFallbackAny, rec, tier)
	}

	return ResolvedResult{Status: StatusNoMatch}
}

// trimRefs matches the trimming NewDimensionKey applies, so the partial
// buckets are searched with the same values as the exact key.
func trimRefs(sel Selection) Selection {
	sel.SubjectRef = strings.TrimSpace(sel.SubjectRef)
	sel.ModifierRef = strings.TrimSpace(sel.ModifierRef)
	return sel
}

func resolved(status MatchStatus, rec TemplateRecord, tier Tier) ResolvedResult {
	return ResolvedResult{
		Status:    status,
		Record:    &rec,
		ResultURL: rec.ResultFor(tier),
	}
}

func firstUsable(records []TemplateRecord) (TemplateRecord, bool) {
	for _, rec := range records {
		if rec.HasResult() {
			return rec, true
		}
	}
	return TemplateRecord{}, false
}

// bestUsable prefers records in the requested locale, then locale-less
// records, then any other locale. Ties keep id order.
func bestUsable(records []TemplateRecord, locale string) (TemplateRecord, bool) {
	best := -1
	bestRank := 3
	for i, rec := range records {
		if !rec.HasResult() {
			continue
		}
		rank := localeRank(rec.Locale, locale)
		if rank < bestRank {
			best, bestRank = i, rank
			if rank == 0 {
				break
			}
		}
	}
	if best < 0 {
		return TemplateRecord{}, false
	}
	return records[best], true
}

func localeRank(recordLocale, wanted string) int {
	switch {
	case recordLocale == wanted:
		return 0
	case recordLocale == "":
		return 1
	default:
		return 2
	}
}

// PreviewURL returns an input image for the selected subject, used as the
// echoed preview when nothing could be resolved.
func PreviewURL(ix *CombinationIndex, sel Selection) string {
	for _, rec := range ix.subjectRecords(strings.TrimSpace(sel.SubjectRef)) {
		if rec.InputURL != "" {
			return rec.InputURL
		}
	}
	return ""
}
