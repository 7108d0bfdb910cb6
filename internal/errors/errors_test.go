package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("github", 403, "forbidden")
	assert.Contains(t, err.Error(), "github")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestAPIError_WithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{Service: "github", StatusCode: 0, Message: "transport", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAPIError_MatchesSentinels(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{404, ErrNotFound},
		{409, ErrConflict},
		{401, ErrAuthFailure},
		{403, ErrAuthFailure},
		{429, ErrRateLimit},
		{502, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := fmt.Errorf("reading prs.yaml: %w", NewAPIError("github", tt.status, "x"))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.NotErrorIs(t, NewAPIError("github", 404, "x"), ErrConflict)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("gh", 429, "rate limit")))
	assert.True(t, IsRetryable(NewAPIError("gh", 502, "bad gateway")))
	assert.True(t, IsRetryable(NewAPIError("gh", 503, "unavailable")))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrUnavailable))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(NewAPIError("gh", 401, "unauth")))
	assert.False(t, IsRetryable(NewAPIError("gh", 404, "not found")))
	assert.False(t, IsRetryable(NewAPIError("gh", 409, "sha mismatch")))
	assert.False(t, IsRetryable(fmt.Errorf("writing: %w", ErrConflict)))
	assert.False(t, IsRetryable(ErrInconsistentState))
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.False(t, IsNotFound(ErrConflict))
	assert.True(t, IsConflict(NewAPIError("github", 409, "conflict")))
}
