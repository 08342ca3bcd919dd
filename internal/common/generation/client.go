// Package generation calls the paid live-generation backend.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"preset-workers/internal/common/config"
	apphttp "preset-workers/internal/common/http"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"

	"github.com/google/uuid"
)

var (
	ErrGenerationFailed  = errors.New("GENERATION_FAILED")
	ErrGenerationTimeout = errors.New("GENERATION_TIMEOUT")
)

// Request is the body of POST {base}/generate.
type Request struct {
	Tool     string            `json:"tool"`
	ImageURL string            `json:"image_url,omitempty"`
	Prompt   string            `json:"prompt,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// Result is the backend's reply. RequestID echoes the X-Request-ID header.
type Result struct {
	Success   bool   `json:"success"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"-"`
}

type Client struct {
	http       *apphttp.Client
	baseURL    string
	apiKey     string
	maxRetries int
	logger     logger.Logger
}

func NewClient(cfg config.GenerationConfig, httpClient *apphttp.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = apphttp.NewClient(apphttp.Options{Timeout: time.Duration(cfg.Timeout) * time.Millisecond})
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		logger:     log,
	}
}

// Generate submits one generation. Temporary failures (429, 5xx, transport
// errors) are retried with exponential backoff; the same request id is sent
// on every attempt so the backend can deduplicate.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	requestID := uuid.NewString()
	headers := map[string]string{"X-Request-ID": requestID}
	if c.apiKey != "" {
		headers["X-API-Key"] = c.apiKey
	}

	var (
		payload []byte
		lastErr error
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, c.fail(req.Tool, "timeout", ErrGenerationTimeout)
			}
		}

		payload, lastErr = c.http.DoJSON(ctx, "POST", c.baseURL+"/generate", headers, req)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, c.fail(req.Tool, "timeout", ErrGenerationTimeout)
		}
		if !temporary(lastErr) {
			break
		}
		c.logger.Warn("generation attempt failed", map[string]interface{}{
			"tool":      req.Tool,
			"requestId": requestID,
			"attempt":   attempt + 1,
			"error":     lastErr.Error(),
		})
	}

	if lastErr != nil {
		return nil, c.fail(req.Tool, "failed", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr))
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, c.fail(req.Tool, "failed", fmt.Errorf("%w: decode error: %v", ErrGenerationFailed, err))
	}
	result.RequestID = requestID

	if !result.Success || result.ResultURL == "" {
		reason := result.Error
		if reason == "" {
			reason = "no result url"
		}
		return nil, c.fail(req.Tool, "rejected", fmt.Errorf("%w: %s", ErrGenerationFailed, reason))
	}

	metrics.GenerationRequests.WithLabelValues(req.Tool, "ok").Inc()
	c.logger.Info("generation completed", map[string]interface{}{
		"tool":      req.Tool,
		"requestId": requestID,
	})
	return &result, nil
}

func (c *Client) fail(tool, outcome string, err error) error {
	metrics.GenerationRequests.WithLabelValues(tool, outcome).Inc()
	return err
}

func temporary(err error) bool {
	var statusErr *apphttp.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
