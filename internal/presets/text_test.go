package presets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	both := TemplateRecord{TextPrimary: "hello", TextSecondary: "你好"}
	onlySecondary := TemplateRecord{TextSecondary: "你好"}
	onlyPrimary := TemplateRecord{TextPrimary: "hello"}

	tests := []struct {
		name   string
		rec    TemplateRecord
		locale string
		want   string
	}{
		{"primary locale paired", both, "en", "hello"},
		{"chinese paired", both, "zh", "你好"},
		{"chinese region paired", both, "zh-TW", "你好"},
		{"primary locale falls back to secondary", onlySecondary, "en", "你好"},
		{"chinese falls back to primary", onlyPrimary, "zh-CN", "hello"},
		{"empty locale uses primary", both, "", "hello"},
		{"nothing populated", TemplateRecord{}, "en", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.rec, tt.locale))
		})
	}
}
