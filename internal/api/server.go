// Package api is the HTTP surface the coaching agent and operators call:
// session lifecycle, ledger jobs, analytics queries and probes.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/liftlog/internal/config"
	"github.com/p-blackswan/liftlog/internal/requestid"
	"github.com/p-blackswan/liftlog/internal/runtime"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr     string
	AuthConfig     AuthConfig
	RateLimit      RateLimitConfig
	RequestTimeout time.Duration
	RPEWindowDays  int
}

// ServerConfigFrom derives the server settings from the loaded config.
func ServerConfigFrom(cfg *config.Config) ServerConfig {
	return ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: AuthConfig{
			Mode:         cfg.AuthMode,
			APIKey:       cfg.APIKey,
			ReadOnlyKeys: cfg.ReadOnlyKeyList(),
		},
		RateLimit:      RateLimitConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		RequestTimeout: cfg.RequestTimeout,
		RPEWindowDays:  cfg.RPEWindowDays,
	}
}

// Server is the API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	limiter  *rateLimiter
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a new API server over rt.
func NewServer(cfg ServerConfig, rt *runtime.Runtime, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		UnescapePath:          true,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:      app,
		handlers: NewHandlers(rt, cfg.RPEWindowDays, logger),
		logger:   logger,
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(s.handlers, rt)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID: honor the caller's, so agent job logs and ours correlate.
	s.app.Use(func(c *fiber.Ctx) error {
		ctx, reqID := requestid.FromHeader(c.UserContext(), c.Get(requestid.Header))
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		if cfg.RequestTimeout > 0 && !isProbe(c.Path()) {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}
		c.SetUserContext(ctx)
		return c.Next()
	})

	if cfg.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit)
		s.app.Use(s.limiter.Handler())
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit log
	s.app.Use(func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}
		started := time.Now()
		err := c.Next()
		reqLogger := requestid.Logger(c.UserContext(), logger)
		reqLogger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Dur("took", time.Since(started)).
			Msg("api request")
		return err
	})
}

func (s *Server) setupRoutes(h *Handlers, rt *runtime.Runtime) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)
	if rt.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(rt.Metrics.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")
	admin := requireRole(RoleAdmin)

	// Sessions
	v1.Post("/sessions", admin, h.LogSession)
	v1.Post("/sessions/open", admin, h.OpenSession)
	v1.Get("/sessions/in-progress", h.InProgress)
	v1.Post("/sessions/:id/exercises", admin, h.AppendExercise)
	v1.Post("/sessions/:id/finalize", admin, h.FinalizeSession)
	v1.Delete("/sessions/:id", admin, h.AbandonSession)

	// Interrupted finalizes
	v1.Get("/anomalies", h.ListAnomalies)
	v1.Post("/anomalies/:id/repair", admin, h.RepairAnomaly)

	// Analytics
	v1.Get("/prs", h.PRs)
	v1.Get("/e1rm/:exercise/trend", h.Trend)
	v1.Get("/rpe/:exercise", h.RPE)
	v1.Post("/retro/:week", admin, h.WeeklyRetro)

	v1.Get("/health", h.HealthDetail)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("api server shutting down")
	if s.limiter != nil {
		s.limiter.Close()
	}
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, errType, title := problem(err)

		ev := logger.Warn()
		if code >= fiber.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Str("request_id", requestid.FromContext(c.UserContext())).
			Msg("request failed")

		detail := err.Error()
		// Don't leak internal details
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}
		return problemResponse(c, code, errType, title, detail)
	}
}
