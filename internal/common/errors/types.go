package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeRateLimit represents quota exhaustion after retries
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeCancelled represents a queued request cancelled before dispatch
	ErrTypeCancelled ErrorType = "cancelled"
	// ErrTypeQueueCleared represents a request dropped by a queue wipe
	ErrTypeQueueCleared ErrorType = "queue_cleared"
	// ErrTypeExecution represents a non-retryable collaborator failure
	ErrTypeExecution ErrorType = "execution"
	// ErrTypeCacheUnavailable represents durable-tier I/O failure
	ErrTypeCacheUnavailable ErrorType = "cache_unavailable"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// RateLimitExceeded creates an error for a request whose retries are exhausted
func RateLimitExceeded(id string, attempts int) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit retries exhausted for request %s after %d attempts", id, attempts),
	}
}

// Cancelled creates an error for a request cancelled before dispatch
func Cancelled(id string) *AppError {
	return &AppError{
		Type:    ErrTypeCancelled,
		Message: fmt.Sprintf("request %s cancelled before dispatch", id),
	}
}

// QueueCleared creates an error for a request dropped by Clear
func QueueCleared(id string) *AppError {
	return &AppError{
		Type:    ErrTypeQueueCleared,
		Message: fmt.Sprintf("request %s dropped: queue cleared", id),
	}
}

// ExecutionFailed wraps a terminal collaborator failure
func ExecutionFailed(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeExecution,
		Message: msg,
		Cause:   cause,
	}
}

// MalformedResponse creates an execution error for an unparseable generation result.
// Surfaced with the execution type so callers have a single terminal failure shape.
func MalformedResponse(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeExecution,
		Message: msg,
		Code:    "malformed_response",
	}
}

// CacheUnavailable wraps a durable-tier failure; logged, never propagated
func CacheUnavailable(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeCacheUnavailable,
		Message: fmt.Sprintf("durable cache %s failed", operation),
		Cause:   cause,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeExecution
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeExecution
	}

	return appErr.Type
}
