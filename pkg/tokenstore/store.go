// Package tokenstore caches short-lived credentials such as GitHub App
// installation tokens.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// Token is a cached credential.
type Token struct {
	Key       string
	Value     string
	ExpiresAt time.Time
}

// ExpiredAt reports whether the token is unusable at now. Tokens inside the
// refresh margin count as expired so a request never starts with a credential
// that dies mid-flight.
func (t *Token) ExpiredAt(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(t.ExpiresAt)
}

// Store caches tokens by key.
type Store interface {
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrTokenNotFound or ErrTokenExpired when no usable token exists.
	Get(ctx context.Context, key string) (*Token, error)
	Delete(ctx context.Context, key string) error
}
