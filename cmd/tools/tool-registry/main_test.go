package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preset-workers/internal/common/logger"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"
)

type stubSource struct {
	records []presets.RawRecord
	err     error
}

func (s stubSource) Fetch(context.Context, presets.ToolType, string) ([]presets.RawRecord, error) {
	return s.records, s.err
}

func avatarRecord(id, avatar, script, locale string) presets.RawRecord {
	return presets.RawRecord{
		ID:                   id,
		Locale:               locale,
		InputImageURL:        "https://cdn.example.com/in/" + avatar + ".png",
		ResultVideoURL:       "https://cdn.example.com/out/" + id + ".mp4",
		ResultWatermarkedURL: "https://cdn.example.com/wm/" + id + ".mp4",
		InputParams:          map[string]interface{}{"avatar_id": avatar, "script_id": script},
	}
}

func TestRegistryCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "tool-registry.json")
	var out bytes.Buffer

	require.NoError(t, runInit([]string{"-path", path}, &out))
	assert.Contains(t, out.String(), "Wrote 5 tools")

	err := runInit([]string{"-path", path}, &out)
	assert.ErrorContains(t, err, "already exists")
	require.NoError(t, runInit([]string{"-path", path, "-force"}, &out))

	out.Reset()
	require.NoError(t, runValidate([]string{"-path", path}, &out))
	assert.Contains(t, out.String(), "Found 5 tools")

	out.Reset()
	require.NoError(t, runList([]string{"-path", path}, &out))
	assert.Contains(t, out.String(), "avatar")
	assert.Contains(t, out.String(), "avatar_id")
	assert.Contains(t, out.String(), "style,room_type")
}

func TestValidateRejectsBadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tools":[{"type":"avatar","resultKind":"gif"}]}`), 0644))

	err := runValidate([]string{"-path", path}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid resultKind")
}

func TestResolveSelection(t *testing.T) {
	tools := registry.Default()
	log := logger.NewNoOpLogger()

	t.Run("exact match for demo is watermarked", func(t *testing.T) {
		src := stubSource{records: []presets.RawRecord{
			avatarRecord("r1", "a1", "s1", "en"),
			avatarRecord("r2", "a2", "s1", "en"),
		}}
		report, err := resolveSelection(context.Background(), src, tools,
			resolveOptions{tool: "Avatar", locale: "EN", subject: "a1", modifier: "s1", tier: "demo"}, log)

		require.NoError(t, err)
		assert.Equal(t, "avatar", report.Tool)
		assert.Equal(t, "en", report.Locale)
		assert.Equal(t, 2, report.Records)
		assert.Equal(t, presets.StatusExact, report.Result.Status)
		assert.Equal(t, "https://cdn.example.com/wm/r1.mp4", report.Result.ResultURL)
		assert.Empty(t, report.PreviewURL)
	})

	t.Run("no usable result echoes the input preview", func(t *testing.T) {
		rec := avatarRecord("r1", "a1", "s1", "en")
		rec.ResultVideoURL, rec.ResultWatermarkedURL = "", ""
		report, err := resolveSelection(context.Background(), stubSource{records: []presets.RawRecord{rec}}, tools,
			resolveOptions{tool: "avatar", locale: "en", subject: "a1", tier: "subscriber"}, log)

		require.NoError(t, err)
		assert.Equal(t, presets.StatusNoMatch, report.Result.Status)
		assert.Equal(t, "https://cdn.example.com/in/a1.png", report.PreviewURL)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := resolveSelection(context.Background(), stubSource{}, tools,
			resolveOptions{tool: "nope", subject: "a1"}, log)
		assert.ErrorContains(t, err, "unknown tool type")
	})

	t.Run("fetch failure", func(t *testing.T) {
		_, err := resolveSelection(context.Background(), stubSource{err: errors.New("502")}, tools,
			resolveOptions{tool: "avatar", locale: "en", subject: "a1"}, log)
		assert.ErrorContains(t, err, "fetch avatar/en")
	})
}

func TestResolveRequiresToolAndSubject(t *testing.T) {
	err := runResolve([]string{"-tool", "avatar"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "tool and subject are required")
}
