package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"preset-workers/internal/common/config"
	apphttp "preset-workers/internal/common/http"
	"preset-workers/internal/common/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	cfg := config.GenerationConfig{BaseURL: srv.URL, APIKey: "gen-key", MaxRetries: retries}
	return NewClient(cfg, apphttp.NewWithHTTPClient(srv.Client()), logger.NewTestLogger(t))
}

func TestGenerate_Success(t *testing.T) {
	var got Request
	var gotID, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		gotID = r.Header.Get("X-Request-ID")
		gotKey = r.Header.Get("X-API-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"result_url":"https://cdn/out.png"}`))
	}))
	defer srv.Close()

	res, err := createTestClient(t, srv, 0).Generate(context.Background(), Request{
		Tool:     "room",
		ImageURL: "https://cdn/in.png",
		Prompt:   "scandinavian living room",
		Params:   map[string]string{"style": "scandi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/out.png", res.ResultURL)
	assert.Equal(t, gotID, res.RequestID)
	_, parseErr := uuid.Parse(gotID)
	assert.NoError(t, parseErr)
	assert.Equal(t, "gen-key", gotKey)
	assert.Equal(t, "room", got.Tool)
	assert.Equal(t, "scandi", got.Params["style"])
}

func TestGenerate_RetriesTemporaryFailures(t *testing.T) {
	var calls int32
	ids := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get("X-Request-ID")
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true,"result_url":"u"}`))
	}))
	defer srv.Close()

	_, err := createTestClient(t, srv, 2).Generate(context.Background(), Request{Tool: "avatar"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	first := <-ids
	assert.Equal(t, first, <-ids)
	assert.Equal(t, first, <-ids)
}

func TestGenerate_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := createTestClient(t, srv, 3).Generate(context.Background(), Request{Tool: "avatar"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"nsfw"}`))
	}))
	defer srv.Close()

	_, err := createTestClient(t, srv, 0).Generate(context.Background(), Request{Tool: "tryon"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Contains(t, err.Error(), "nsfw")
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := createTestClient(t, srv, 2).Generate(ctx, Request{Tool: "avatar"})
	assert.True(t, errors.Is(err, ErrGenerationTimeout))
}
