// Package requestid tags each job with an ID that follows it through logs and
// commit messages.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header carries a caller-supplied job ID on API requests.
const Header = "X-Request-ID"

const maxLen = 64

type ctxKey struct{}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the job ID in ctx, or a fresh one when there is none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New generates a job ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// FromHeader accepts a caller-supplied ID when it is short and printable,
// otherwise it generates one.
func FromHeader(ctx context.Context, value string) (context.Context, string) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxLen || strings.ContainsFunc(value, func(r rune) bool { return r < 0x21 || r > 0x7e }) {
		return New(ctx)
	}
	return WithRequestID(ctx, value), value
}

// Logger returns logger with the job ID of ctx attached.
func Logger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	return logger.With().Str("request_id", FromContext(ctx)).Logger()
}
