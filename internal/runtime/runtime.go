// Package runtime builds the per-process context object that owns every
// long-lived component and serializes use of the local mirror.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/liftlog/internal/config"
	"github.com/p-blackswan/liftlog/internal/docstore"
	"github.com/p-blackswan/liftlog/internal/health"
	"github.com/p-blackswan/liftlog/internal/history"
	"github.com/p-blackswan/liftlog/internal/metrics"
	"github.com/p-blackswan/liftlog/internal/mirror"
	"github.com/p-blackswan/liftlog/internal/session"
	"github.com/p-blackswan/liftlog/internal/tracker"
	"github.com/p-blackswan/liftlog/pkg/tokenstore"
)

// Mirror is the subset of *mirror.Mirror the runtime drives.
type Mirror interface {
	history.Source
	Path() string
	Sync(ctx context.Context) (string, error)
	CommitAndPush(ctx context.Context, message string) error
}

// Deps are the components a Runtime is assembled from.
type Deps struct {
	Config  *config.Config
	Store   docstore.Store
	Mirror  Mirror
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Runtime holds one instance of every component for the life of the process.
type Runtime struct {
	Config   *config.Config
	Store    docstore.Store
	Mirror   Mirror
	History  *history.Reader
	Sessions *session.Manager
	Tracker  *tracker.Tracker
	Metrics  *metrics.Metrics
	Health   *health.Checker
	Logger   zerolog.Logger

	mirrorMu sync.Mutex
}

// New connects to GitHub with the configured credentials and assembles the
// runtime. Nothing touches the network until the first call.
func New(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tokens, err := tokenSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := docstore.NewGitHubStore(docstore.GitHubConfig{
		Owner:      cfg.GitHubOwner,
		Repo:       cfg.GitHubRepo,
		BaseBranch: cfg.GitHubBaseBranch,
		BaseURL:    cfg.GitHubAPIURL,
	}, tokens, logger, docstore.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	mir := mirror.New(mirror.Config{
		Dir:         cfg.MirrorDir,
		RemoteURL:   cfg.MirrorRemoteURL,
		BaseBranch:  cfg.GitHubBaseBranch,
		GitBinary:   cfg.GitBinary,
		AuthorName:  cfg.GitAuthorName,
		AuthorEmail: cfg.GitAuthorEmail,
	}, tokens, m, logger)

	return Assemble(Deps{Config: cfg, Store: store, Mirror: mir, Metrics: m, Logger: logger}), nil
}

func tokenSource(cfg *config.Config, logger zerolog.Logger) (docstore.TokenSource, error) {
	if cfg.GitHubToken != "" {
		return docstore.StaticToken(cfg.GitHubToken), nil
	}
	app, err := docstore.NewAppInstallation(cfg.GitHubAppID, cfg.GitHubInstallationID,
		cfg.GitHubPrivateKeyPath, tokenstore.NewMemoryStore(), logger)
	if err != nil {
		return nil, fmt.Errorf("github app credentials: %w", err)
	}
	if cfg.GitHubAPIURL != "" {
		app = app.WithAPIBase(cfg.GitHubAPIURL)
	}
	return app, nil
}

// Assemble wires already-built store and mirror into a Runtime.
func Assemble(d Deps) *Runtime {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	reader := history.NewReader(d.Mirror, cfg.HistoryCacheSize, d.Logger)
	rt := &Runtime{
		Config:   cfg,
		Store:    d.Store,
		Mirror:   d.Mirror,
		History:  reader,
		Sessions: session.NewManager(d.Store, d.Metrics, d.Logger),
		Tracker:  tracker.New(d.Store, reader, d.Metrics, d.Logger, tracker.WithMaxSessions(cfg.E1RMWindow)),
		Metrics:  d.Metrics,
		Health:   health.NewChecker(d.Logger),
		Logger:   d.Logger.With().Str("component", "runtime").Logger(),
	}
	rt.Health.Register("github", health.ErrorCheck(func(ctx context.Context) error {
		_, err := d.Store.ListBranches(ctx, session.BranchPrefix)
		return err
	}))
	rt.Health.Register("mirror", health.MirrorCheck(d.Mirror.Path()))
	return rt
}

// WithMirror syncs the mirror, runs fn and, when message is non-empty,
// commits and pushes whatever fn changed. Calls are serialized: the mirror
// has a single working copy.
func (r *Runtime) WithMirror(ctx context.Context, message string, fn func(ctx context.Context, m Mirror) error) error {
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()

	if _, err := r.Mirror.Sync(ctx); err != nil {
		return fmt.Errorf("syncing mirror: %w", err)
	}
	if err := fn(ctx, r.Mirror); err != nil {
		return err
	}
	if message == "" {
		return nil
	}
	if err := r.Mirror.CommitAndPush(ctx, message); err != nil {
		return fmt.Errorf("pushing mirror: %w", err)
	}
	return nil
}

// Warm clones or refreshes the mirror once at startup. A failure is logged
// and left for the next WithMirror call to retry.
func (r *Runtime) Warm(ctx context.Context) {
	started := time.Now()
	err := r.WithMirror(ctx, "", func(context.Context, Mirror) error { return nil })
	if err != nil {
		r.Logger.Warn().Err(err).Msg("initial mirror sync failed")
		return
	}
	r.Logger.Info().Dur("took", time.Since(started)).Str("dir", r.Mirror.Path()).Msg("mirror ready")
}

// Inspect lists interrupted session finalizes.
func (r *Runtime) Inspect(ctx context.Context) ([]session.Anomaly, error) {
	return r.Sessions.Inspect(ctx)
}
