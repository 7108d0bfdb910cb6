// Package errors provides the error taxonomy shared by the store, the mirror
// and the analytics engines.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("version conflict")
	ErrUnavailable       = errors.New("remote unavailable")
	ErrInconsistentState = errors.New("inconsistent state")
	ErrTimeout           = errors.New("operation timed out")
	ErrAuthFailure       = errors.New("authentication failed")
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrInvalidInput      = errors.New("invalid input")
)

// APIError represents an error from the hosted Git provider.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match on the status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrAuthFailure:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimit:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnavailable:
		return e.StatusCode == 0 || e.StatusCode >= 500
	}
	return false
}

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Conflicts are never retryable: the caller must re-read before writing again.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrConflict) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 0, 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// IsNotFound reports whether err means the document or branch does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is an optimistic-concurrency rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
