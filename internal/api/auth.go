package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Role is what an API key may do. The coaching agent holds the admin key;
// dashboards get read-only keys.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReadOnly Role = "readonly"
)

const roleLocal = "role"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode         string // "api-key" or "none"
	APIKey       string
	ReadOnlyKeys []string
}

// roleFor resolves a bearer token. Comparisons are constant time.
func (cfg AuthConfig) roleFor(token string) (Role, bool) {
	if sameKey(token, cfg.APIKey) {
		return RoleAdmin, true
	}
	for _, key := range cfg.ReadOnlyKeys {
		if sameKey(token, key) {
			return RoleReadOnly, true
		}
	}
	return "", false
}

func sameKey(token, key string) bool {
	return key != "" && subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}

func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

// NewAuthMiddleware resolves the caller's role from a bearer API key. Probes
// are open; with Mode "none" every caller is admin.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == "none" {
			c.Locals(roleLocal, RoleAdmin)
			return c.Next()
		}
		if isProbe(c.Path()) {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return problemResponse(c, fiber.StatusUnauthorized, "missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return problemResponse(c, fiber.StatusUnauthorized, "invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		role, ok := cfg.roleFor(token)
		if !ok {
			logger.Warn().Str("path", c.Path()).Str("method", c.Method()).Str("ip", c.IP()).
				Msg("rejected request with unknown API key")
			return problemResponse(c, fiber.StatusUnauthorized, "invalid_api_key", "Unauthorized",
				"Invalid API key")
		}
		c.Locals(roleLocal, role)
		return c.Next()
	}
}

// requireRole guards routes that change the repository.
func requireRole(want Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(roleLocal).(Role)
		if role != want && role != RoleAdmin {
			return problemResponse(c, fiber.StatusForbidden, "insufficient_role", "Forbidden",
				"This API key is read-only")
		}
		return c.Next()
	}
}

// problemResponse writes an RFC 7807 problem document.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
