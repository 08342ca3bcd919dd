package dispatchgeneration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"preset-workers/internal/common/config"
	apperrors "preset-workers/internal/common/errors"
	"preset-workers/internal/common/generation"
	apphttp "preset-workers/internal/common/http"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Generator Implementation
// ==========================

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generation.Result), args.Error(1)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T, gen Generator) *Handler {
	return NewHandler(DefaultConfig(), presets.NewGate(nil, nil), registry.Default(), gen, nil, logger.NewTestLogger(t))
}

func createTestJob(variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       7,
		Type:      TaskType,
		Retries:   3,
		Variables: string(variablesJSON),
	}}
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok, "expected a StandardError, got %v", err)
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, generation.Request{
		Tool:     "room",
		ImageURL: "https://cdn/in.png",
		Prompt:   "loft with plants",
		Params:   map[string]string{"room_id": "living-1", "style": "scandi", "room_type": "living"},
	}).Return(&generation.Result{Success: true, ResultURL: "https://cdn/out.png", RequestID: "req-1"}, nil)

	output, err := createTestHandler(t, gen).Execute(context.Background(), &Input{
		Tier:        "subscriber",
		ToolType:    "Room",
		SubjectRef:  "living-1",
		ModifierRef: "scandi",
		ImageURL:    "https://cdn/in.png",
		Prompt:      "loft with plants",
		Params:      map[string]string{"room_type": "living"},
	})
	require.NoError(t, err)

	assert.True(t, output.Success)
	assert.Equal(t, "https://cdn/out.png", output.ResultURL)
	assert.Equal(t, "req-1", output.RequestID)
	gen.AssertExpectations(t)
}

func TestHandler_Execute_DeniedNeverCallsBackend(t *testing.T) {
	tests := []struct {
		name   string
		input  *Input
		reason presets.DenialReason
	}{
		{"demo tier", &Input{Tier: "demo", ToolType: "avatar"}, presets.ReasonRequiresSubscription},
		{"demo custom prompt", &Input{Tier: "demo", ToolType: "room", Prompt: "attic"}, presets.ReasonCustomInputNotAllowed},
		{"missing tier", &Input{ToolType: "tryon", SubjectRef: "shirt-1"}, presets.ReasonRequiresSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)

			_, err := createTestHandler(t, gen).Execute(context.Background(), tt.input)
			requireCode(t, err, apperrors.ErrCodeGenerationNotPermitted)

			stdErr, _ := apperrors.AsStandardError(err)
			assert.Equal(t, string(tt.reason), stdErr.Metadata["denialReason"])
			assert.False(t, stdErr.Retryable)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_BackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"timeout", generation.ErrGenerationTimeout, apperrors.ErrCodeGenerationTimeout},
		{"failure", fmt.Errorf("%w: status 502", generation.ErrGenerationFailed), apperrors.ErrCodeGenerationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)
			gen.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := createTestHandler(t, gen).Execute(context.Background(), &Input{Tier: "subscriber", ToolType: "avatar"})
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandler_Execute_UnknownTool(t *testing.T) {
	_, err := createTestHandler(t, new(MockGenerator)).Execute(context.Background(), &Input{Tier: "subscriber", ToolType: "hologram"})
	requireCode(t, err, apperrors.ErrCodeUnknownToolType)
}

func TestHandler_Execute_WithGenerationClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"result_url":"https://cdn/bg-removed.png"}`)
	}))
	defer srv.Close()

	client := generation.NewClient(config.GenerationConfig{BaseURL: srv.URL}, apphttp.NewWithHTTPClient(srv.Client()), logger.NewTestLogger(t))

	output, err := createTestHandler(t, client).Execute(context.Background(), &Input{
		Tier:     "subscriber",
		ToolType: "background",
		ImageURL: "https://cdn/photo.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/bg-removed.png", output.ResultURL)
	assert.NotEmpty(t, output.RequestID)
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := createTestHandler(t, new(MockGenerator))

	tests := []struct {
		name    string
		vars    map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"toolType": "room", "imageUrl": "https://cdn/in.png", "params": map[string]interface{}{"style": "scandi"}}, false},
		{"relative image url", map[string]interface{}{"toolType": "room", "imageUrl": "/in.png"}, true},
		{"non-string param", map[string]interface{}{"toolType": "room", "params": map[string]interface{}{"n": 3}}, true},
		{"missing tool", map[string]interface{}{"tier": "subscriber"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.parseInput(createTestJob(tt.vars))
			if tt.wantErr {
				requireCode(t, err, apperrors.ErrCodeInvalidSelection)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigFromApp(t *testing.T) {
	cfg := &config.Config{Generation: config.GenerationConfig{Timeout: 1000, MaxRetries: 2}}
	assert.Equal(t, "3s", ConfigFromApp(cfg).Timeout.String())
}
