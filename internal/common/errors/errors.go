// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeTemplateLoadFailed  ErrorCode = "TEMPLATE_LOAD_FAILED"
	ErrCodeTemplateLoadTimeout ErrorCode = "TEMPLATE_LOAD_TIMEOUT"

	ErrCodeInvalidSelection ErrorCode = "INVALID_SELECTION"
	ErrCodeUnknownToolType  ErrorCode = "UNKNOWN_TOOL_TYPE"

	ErrCodeTierLookupFailed ErrorCode = "TIER_LOOKUP_FAILED"
	ErrCodeTierNotFound     ErrorCode = "TIER_NOT_FOUND"

	ErrCodeGenerationFailed       ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout      ErrorCode = "GENERATION_TIMEOUT"
	ErrCodeGenerationNotPermitted ErrorCode = "GENERATION_NOT_PERMITTED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key to the error metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewTemplateLoadFailedError creates a retryable template store error.
func NewTemplateLoadFailedError(tool, locale string, err error) *StandardError {
	return newError(ErrCodeTemplateLoadFailed, "Failed to load templates", errDetails(err), true).
		WithMetadata("tool", tool).
		WithMetadata("locale", locale)
}

// NewTemplateLoadTimeoutError creates a retryable timeout error for the template store.
func NewTemplateLoadTimeoutError(tool, locale string) *StandardError {
	return newError(ErrCodeTemplateLoadTimeout, "Template store request timed out", "", true).
		WithMetadata("tool", tool).
		WithMetadata("locale", locale)
}

// NewInvalidSelectionError creates a non-retryable input error.
func NewInvalidSelectionError(details string) *StandardError {
	return newError(ErrCodeInvalidSelection, "Invalid selection", details, false)
}

// NewUnknownToolTypeError creates a non-retryable error for unregistered tools.
func NewUnknownToolTypeError(tool string) *StandardError {
	return newError(ErrCodeUnknownToolType, "Unknown tool type", fmt.Sprintf("tool %q is not registered", tool), false)
}

// NewTierLookupFailedError creates a retryable database error.
func NewTierLookupFailedError(err error) *StandardError {
	return newError(ErrCodeTierLookupFailed, "Database error during tier lookup", errDetails(err), true)
}

// NewTierNotFoundError creates a non-retryable error for a missing user.
func NewTierNotFoundError(userID string) *StandardError {
	return newError(ErrCodeTierNotFound, "No subscription record for user", fmt.Sprintf("user %s", userID), false)
}

// NewGenerationFailedError creates a retryable generation backend error.
func NewGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeGenerationFailed, "Generation request failed", errDetails(err), true)
}

// NewGenerationTimeoutError creates a retryable generation timeout error.
func NewGenerationTimeoutError() *StandardError {
	return newError(ErrCodeGenerationTimeout, "Generation request timed out", "", true)
}

// NewGenerationNotPermittedError creates a non-retryable tier error.
func NewGenerationNotPermittedError(reason string) *StandardError {
	return newError(ErrCodeGenerationNotPermitted, "Generation not permitted for tier", reason, false)
}

// ==========================
// 4. Retry and BPMN Mapping
// ==========================

// BPMNErrorMapping maps internal codes to the error codes caught by boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeTemplateLoadFailed:     "TEMPLATE_LOAD_FAILED",
	ErrCodeTemplateLoadTimeout:    "TEMPLATE_LOAD_FAILED",
	ErrCodeInvalidSelection:       "INVALID_SELECTION",
	ErrCodeUnknownToolType:        "INVALID_SELECTION",
	ErrCodeTierLookupFailed:       "TIER_LOOKUP_FAILED",
	ErrCodeTierNotFound:           "TIER_NOT_FOUND",
	ErrCodeGenerationFailed:       "GENERATION_FAILED",
	ErrCodeGenerationTimeout:      "GENERATION_TIMEOUT",
	ErrCodeGenerationNotPermitted: "GENERATION_NOT_PERMITTED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTemplateLoadFailed,
		ErrCodeTierLookupFailed:
		return 3

	case ErrCodeTemplateLoadTimeout,
		ErrCodeGenerationFailed:
		return 2

	case ErrCodeGenerationTimeout:
		return 1

	default:
		return 0 // business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err looking for a StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.HasPrefix(codeStr, "TIER"):
		return "ACCESS"
	case strings.HasPrefix(codeStr, "GENERATION"):
		return "GENERATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
