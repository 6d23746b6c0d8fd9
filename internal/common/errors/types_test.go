package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Run("type and message", func(t *testing.T) {
		err := ConfigError("bad port")
		assert.Equal(t, "config: bad port", err.Error())
	})

	t.Run("with code", func(t *testing.T) {
		err := MalformedResponse("not json")
		assert.Contains(t, err.Error(), "code=malformed_response")
	})

	t.Run("with cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := ExecutionFailed("call failed", cause)
		assert.Contains(t, err.Error(), "cause=connection refused")
	})

	t.Run("with context", func(t *testing.T) {
		err := Cancelled("req-1").WithContext("queue_depth", 3)
		assert.Contains(t, err.Error(), "queue_depth=3")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := ExecutionFailed("wrapped", cause)
	assert.ErrorIs(t, err, cause)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected ErrorType
	}{
		{"rate limit", RateLimitExceeded("req-1", 4), ErrTypeRateLimit},
		{"cancelled", Cancelled("req-1"), ErrTypeCancelled},
		{"queue cleared", QueueCleared("req-1"), ErrTypeQueueCleared},
		{"execution", ExecutionFailed("boom", nil), ErrTypeExecution},
		{"malformed response", MalformedResponse("not json"), ErrTypeExecution},
		{"cache unavailable", CacheUnavailable("get", nil), ErrTypeCacheUnavailable},
		{"config", ConfigError("bad"), ErrTypeConfig},
		{"validation", ValidationError("bad"), ErrTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Type)
			assert.True(t, IsType(tt.err, tt.expected))
		})
	}
}

func TestIsType(t *testing.T) {
	assert.False(t, IsType(nil, ErrTypeExecution))
	assert.False(t, IsType(stderrors.New("plain"), ErrTypeExecution))
	assert.False(t, IsType(Cancelled("x"), ErrTypeRateLimit))
	assert.True(t, IsType(Cancelled("x"), ErrTypeCancelled))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetType(nil))
	assert.Equal(t, ErrTypeExecution, GetType(stderrors.New("plain")))
	assert.Equal(t, ErrTypeRateLimit, GetType(RateLimitExceeded("x", 1)))
}
