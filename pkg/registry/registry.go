// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRegistry reads a tool registry file. An empty path yields the defaults.
func LoadRegistry(path string) (*ToolRegistry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ToolRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Save writes the registry as indented JSON, creating parent directories.
func Save(reg *ToolRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Profile looks a tool up by type, case-insensitively.
func (r *ToolRegistry) Profile(toolType string) (ToolProfile, bool) {
	for _, t := range r.Tools {
		if strings.EqualFold(t.Type, toolType) {
			return t, true
		}
	}
	return ToolProfile{}, false
}

// Types lists the registered tool types in file order.
func (r *ToolRegistry) Types() []string {
	out := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		out = append(out, t.Type)
	}
	return out
}

// Validate checks required fields and duplicate types.
func (r *ToolRegistry) Validate() error {
	if len(r.Tools) == 0 {
		return fmt.Errorf("registry contains no tools")
	}

	seen := make(map[string]bool)
	for _, t := range r.Tools {
		if t.Type == "" {
			return fmt.Errorf("tool missing required field: type")
		}
		key := strings.ToLower(t.Type)
		if seen[key] {
			return fmt.Errorf("duplicate tool type: %s", t.Type)
		}
		seen[key] = true

		if t.ResultKind != ResultImage && t.ResultKind != ResultVideo {
			return fmt.Errorf("tool %s has invalid resultKind %q", t.Type, t.ResultKind)
		}
		for _, p := range append(append([]string{}, t.SubjectParams...), t.ModifierParams...) {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("tool %s has an empty parameter name", t.Type)
			}
		}
	}
	return nil
}

// Default returns the built-in profiles for the five preset tools.
func Default() *ToolRegistry {
	return &ToolRegistry{
		Version: "1.0.0",
		Tools: []ToolProfile{
			{
				Type:                "avatar",
				DisplayName:         "Avatar Video",
				ResultKind:          ResultVideo,
				SubjectParams:       []string{"avatar_id"},
				ModifierParams:      []string{"script_id"},
				LocaleParam:         "language",
				ExtraAxes:           []string{"voice_id"},
				Locales:             []string{"en", "zh"},
				RestrictedModifiers: []string{"custom"},
			},
			{
				Type:                "room",
				DisplayName:         "Room Redesign",
				ResultKind:          ResultImage,
				SubjectParams:       []string{"room_id"},
				ModifierParams:      []string{"style", "room_type"},
				ExtraAxes:           []string{"room_type"},
				Locales:             []string{"en", "zh"},
				RestrictedModifiers: []string{"custom"},
			},
			{
				Type:                "product",
				DisplayName:         "Product Scene",
				ResultKind:          ResultImage,
				SubjectParams:       []string{"product_id"},
				ModifierParams:      []string{"scene_type"},
				Locales:             []string{"en", "zh"},
				RestrictedModifiers: []string{"custom"},
			},
			{
				Type:           "tryon",
				DisplayName:    "Virtual Try-On",
				ResultKind:     ResultImage,
				SubjectParams:  []string{"clothing_id"},
				ModifierParams: []string{"model_id"},
				Locales:        []string{"en", "zh"},
			},
			{
				Type:        "background",
				DisplayName: "Background Removal",
				ResultKind:  ResultImage,
				Locales:     []string{"en", "zh"},
			},
		},
	}
}
