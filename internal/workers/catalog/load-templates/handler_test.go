package loadtemplates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"preset-workers/internal/common/config"
	apperrors "preset-workers/internal/common/errors"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/presets"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type stubSource struct {
	mu      sync.Mutex
	records []presets.RawRecord
	err     error
}

func (s *stubSource) Fetch(ctx context.Context, tool presets.ToolType, locale string) ([]presets.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *stubSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func createAvatarRecords() []presets.RawRecord {
	return []presets.RawRecord{
		{ID: "a1", Locale: "en", ResultImageURL: "https://cdn/a1.png", InputParams: map[string]interface{}{"avatar_id": "A", "script_id": "S1"}},
		{ID: "a2", Locale: "en", ResultImageURL: "https://cdn/a2.png", InputParams: map[string]interface{}{"avatar_id": "A", "script_id": "S2"}},
		{ID: "a3", Locale: "en", ResultImageURL: "https://cdn/a3.png", InputParams: map[string]interface{}{"avatar_id": "B", "script_id": "S1"}},
		{ID: "broken", Locale: "en", InputParams: map[string]interface{}{"script_id": "S1"}},
	}
}

func createTestHandler(t *testing.T, src presets.Source) *Handler {
	catalog := presets.NewCatalog(src, nil, logger.NewTestLogger(t), presets.WithLoadTimeout(time.Second))
	return NewHandler(&Config{Timeout: 5 * time.Second}, catalog, nil, logger.NewTestLogger(t))
}

func createTestJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "preset-tool-session",
		ElementId:          "Activity_LoadTemplates",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler := createTestHandler(t, &stubSource{records: createAvatarRecords()})

	output, err := handler.Execute(context.Background(), &Input{ToolType: "avatar", Locale: "en_US"})
	require.NoError(t, err)

	assert.Equal(t, StateReady, output.State)
	assert.Equal(t, "avatar", output.ToolType)
	assert.Equal(t, "en", output.Locale)
	assert.Equal(t, 3, output.Records)
	assert.Equal(t, 3, output.Keys)
	assert.Equal(t, 1, output.Skipped)
	assert.NotZero(t, output.Seq)
	assert.Empty(t, output.ErrorCode)
}

func TestHandler_Execute_LoadFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &stubSource{records: createAvatarRecords()}
	handler := createTestHandler(t, src)
	ctx := context.Background()

	first, err := handler.Execute(ctx, &Input{ToolType: "avatar", Locale: "en"})
	require.NoError(t, err)

	src.fail(errors.New("connection reset"))
	output, err := handler.Execute(ctx, &Input{ToolType: "avatar", Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, StateLoadFailed, output.State)
	assert.Equal(t, string(apperrors.ErrCodeTemplateLoadFailed), output.ErrorCode)
	assert.Contains(t, output.Error, "connection reset")
	assert.Equal(t, first.Records, output.Records)
	assert.Equal(t, first.Seq, output.Seq)
}

func TestHandler_Execute_LoadFailureWithoutSnapshot(t *testing.T) {
	handler := createTestHandler(t, &stubSource{err: errors.New("503")})

	output, err := handler.Execute(context.Background(), &Input{ToolType: "room", Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, StateLoadFailed, output.State)
	assert.Equal(t, 0, output.Records)
}

func TestHandler_Execute_UnknownTool(t *testing.T) {
	handler := createTestHandler(t, &stubSource{})

	output, err := handler.Execute(context.Background(), &Input{ToolType: "hologram"})
	require.Error(t, err)
	assert.Nil(t, output)

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUnknownToolType, stdErr.Code)
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := createTestHandler(t, &stubSource{})

	tests := []struct {
		name    string
		vars    map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"toolType": "avatar", "locale": "zh"}, false},
		{"locale optional", map[string]interface{}{"toolType": "avatar"}, false},
		{"missing tool", map[string]interface{}{"locale": "en"}, true},
		{"empty tool", map[string]interface{}{"toolType": ""}, true},
		{"wrong type", map[string]interface{}{"toolType": 7}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := handler.parseInput(createTestJob(1, tt.vars))
			if tt.wantErr {
				require.Error(t, err)
				stdErr, ok := apperrors.AsStandardError(err)
				require.True(t, ok)
				assert.Equal(t, apperrors.ErrCodeInvalidSelection, stdErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.vars["toolType"], input.ToolType)
		})
	}
}

func TestConfigFromApp(t *testing.T) {
	cfg := &config.Config{Workers: map[string]config.WorkerConfig{
		TaskType: {Enabled: true, Timeout: 2500},
	}}
	assert.Equal(t, 2500*time.Millisecond, ConfigFromApp(cfg).Timeout)
	assert.Equal(t, 30*time.Second, ConfigFromApp(nil).Timeout)
}
