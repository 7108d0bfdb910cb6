package docstore

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/pkg/tokenstore"
)

// TokenSource yields the bearer credential for the hosted Git provider. The
// same token authenticates API calls and mirror clones.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("static token: %w", perrors.ErrAuthFailure)
	}
	return string(s), nil
}

const (
	installationTokenTTL = 55 * time.Minute // tokens live one hour
	defaultAPIBase       = "https://api.github.com/"
)

// AppInstallation mints GitHub App installation tokens and caches them.
type AppInstallation struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	cache          tokenstore.Store
	httpClient     *http.Client
	apiBase        string
	logger         zerolog.Logger
}

// NewAppInstallation loads the App private key from keyPath.
func NewAppInstallation(appID, installationID int64, keyPath string, cache tokenstore.Store, logger zerolog.Logger) (*AppInstallation, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewAppInstallationFromKey(appID, installationID, keyData, cache, logger)
}

// NewAppInstallationFromKey builds an AppInstallation from PEM key bytes.
func NewAppInstallationFromKey(appID, installationID int64, keyData []byte, cache tokenstore.Store, logger zerolog.Logger) (*AppInstallation, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if cache == nil {
		cache = tokenstore.NewMemoryStore()
	}
	return &AppInstallation{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		cache:          cache,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		apiBase:        defaultAPIBase,
		logger:         logger.With().Str("component", "github-auth").Logger(),
	}, nil
}

// WithAPIBase points token requests at another API root, e.g. a test server.
func (a *AppInstallation) WithAPIBase(base string) *AppInstallation {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	a.apiBase = base
	return a
}

func (a *AppInstallation) cacheKey() string {
	return "installation:" + strconv.FormatInt(a.installationID, 10)
}

// Token returns a cached installation token or requests a new one.
func (a *AppInstallation) Token(ctx context.Context) (string, error) {
	if tok, err := a.cache.Get(ctx, a.cacheKey()); err == nil {
		return tok.Value, nil
	}

	a.logger.Info().Int64("installation_id", a.installationID).Msg("requesting installation token")
	signed, err := a.appJWT(time.Now())
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%sapp/installations/%d/access_tokens", a.apiBase, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &perrors.APIError{Service: "github", Message: "requesting installation token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", perrors.NewAPIError("github", resp.StatusCode, "installation token: "+strings.TrimSpace(string(body)))
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	if err := a.cache.Set(ctx, a.cacheKey(), out.Token, installationTokenTTL); err != nil {
		a.logger.Warn().Err(err).Msg("failed to cache installation token")
	}
	return out.Token, nil
}

func (a *AppInstallation) appJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing JWT: %w", err)
	}
	return signed, nil
}

// bearerTransport adds the current token to every request.
type bearerTransport struct {
	tokens TokenSource
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req2)
}

// NewHTTPClient returns an http.Client that authenticates with tokens.
func NewHTTPClient(tokens TokenSource, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &bearerTransport{tokens: tokens, base: base},
		Timeout:   30 * time.Second,
	}
}
