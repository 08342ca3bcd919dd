package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectionSchema = `{
	"type": "object",
	"required": ["toolType", "subjectRef"],
	"properties": {
		"toolType":   {"type": "string", "enum": ["avatar", "room"]},
		"subjectRef": {"type": "string", "minLength": 1}
	}
}`

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile(selectionSchema)
	require.NoError(t, err)

	tests := []struct {
		name       string
		doc        map[string]interface{}
		valid      bool
		errorField string
	}{
		{
			name:  "valid document",
			doc:   map[string]interface{}{"toolType": "avatar", "subjectRef": "a-1"},
			valid: true,
		},
		{
			name:       "missing required field",
			doc:        map[string]interface{}{"toolType": "avatar"},
			errorField: "(root)",
		},
		{
			name:       "enum violation",
			doc:        map[string]interface{}{"toolType": "video", "subjectRef": "a-1"},
			errorField: "toolType",
		},
		{
			name:       "empty string",
			doc:        map[string]interface{}{"toolType": "room", "subjectRef": ""},
			errorField: "subjectRef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := schema.Validate(tt.doc)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.NoError(t, result.Err())
				return
			}
			assert.Error(t, result.Err())
			assert.True(t, result.HasErrors(tt.errorField), "errors: %v", result.GetErrorMessages())
		})
	}
}

func TestSchema_ValidateJSON(t *testing.T) {
	schema := MustCompile(selectionSchema)

	assert.True(t, schema.ValidateJSON([]byte(`{"toolType":"room","subjectRef":"r"}`)).Valid)
	assert.False(t, schema.ValidateJSON([]byte(`{"toolType":1}`)).Valid)
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 5}`)
	assert.Error(t, err)
}

func TestValidateURL(t *testing.T) {
	assert.True(t, ValidateURL("https://cdn.example.com/a.png"))
	assert.False(t, ValidateURL("/relative.png"))
	assert.False(t, ValidateURL("ftp://host/x"))
}
