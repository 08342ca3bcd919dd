package presets

import (
	"strings"

	"golang.org/x/text/language"
)

// keySeparator is the ASCII unit separator; it never appears in ids or URLs.
const keySeparator = "\x1f"

// DimensionKey is the canonical (subject, modifier, locale) tuple.
type DimensionKey string

// NewDimensionKey serializes the tuple in fixed order. The locale is reduced
// to its base language so "en", "EN" and "en-US" share a key.
func NewDimensionKey(subjectRef, modifierRef, locale string) DimensionKey {
	return DimensionKey(strings.TrimSpace(subjectRef) + keySeparator +
		strings.TrimSpace(modifierRef) + keySeparator +
		NormalizeLocale(locale))
}

// Parts splits the key back into its components.
func (k DimensionKey) Parts() (subjectRef, modifierRef, locale string) {
	parts := strings.SplitN(string(k), keySeparator, 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

// NormalizeLocale returns the lower-case BCP 47 base language of s, or ""
// for an empty value. Unparseable tags are lower-cased as-is.
func NormalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return strings.ToLower(s)
	}
	base, _ := tag.Base()
	return base.String()
}
