package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Request-ID"))

		body, _ := io.ReadAll(r.Body)
		var got map[string]string
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "avatar", got["tool"])

		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Timeout: time.Second})
	data, err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"X-Request-ID": "abc"}, map[string]string{"tool": "avatar"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
}

func TestDoJSON_StatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		temporary bool
	}{
		{"server error is temporary", http.StatusBadGateway, true},
		{"rate limit is temporary", http.StatusTooManyRequests, true},
		{"bad request is permanent", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("nope"))
			}))
			defer srv.Close()

			_, err := NewWithHTTPClient(srv.Client()).DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.temporary, statusErr.Temporary())
		})
	}
}
