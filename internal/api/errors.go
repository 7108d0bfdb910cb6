package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/session"
)

// problem classifies an error returned by a handler. Unknown errors are 500.
func problem(err error) (status int, errType, title string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, "http_error", fe.Message
	case errors.Is(err, perrors.ErrInconsistentState):
		return fiber.StatusConflict, "inconsistent_state", "Session Needs Repair"
	case errors.Is(err, session.ErrSessionExists):
		return fiber.StatusConflict, "session_exists", "Conflict"
	case errors.Is(err, perrors.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input", "Bad Request"
	case errors.Is(err, perrors.ErrNotFound):
		return fiber.StatusNotFound, "not_found", "Not Found"
	case errors.Is(err, perrors.ErrConflict):
		return fiber.StatusConflict, "version_conflict", "Conflict"
	case errors.Is(err, perrors.ErrAuthFailure):
		return fiber.StatusBadGateway, "upstream_auth", "Bad Gateway"
	case errors.Is(err, perrors.ErrRateLimit), errors.Is(err, perrors.ErrUnavailable):
		return fiber.StatusServiceUnavailable, "upstream_unavailable", "Service Unavailable"
	case errors.Is(err, perrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout", "Gateway Timeout"
	}
	return fiber.StatusInternalServerError, "internal_error", "Internal Server Error"
}
