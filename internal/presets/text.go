package presets

// Text picks the human-readable text for locale: the paired field, then the
// other language, then "". Chinese pairs with TextSecondary.
func Text(rec TemplateRecord, locale string) string {
	paired, other := rec.TextPrimary, rec.TextSecondary
	if NormalizeLocale(locale) == "zh" {
		paired, other = other, paired
	}
	if paired != "" {
		return paired
	}
	return other
}
