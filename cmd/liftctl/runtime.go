package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/liftlog/internal/config"
	"github.com/p-blackswan/liftlog/internal/docstore"
	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/mirror"
	"github.com/p-blackswan/liftlog/internal/runtime"
	"github.com/p-blackswan/liftlog/internal/workout"
)

func loadConfig(opts *globalOptions) (*config.Config, error) {
	if opts.configPath != "" {
		return config.LoadFile(opts.configPath, "")
	}
	return config.Load()
}

func newLogger(opts *globalOptions, stderr io.Writer) zerolog.Logger {
	if !opts.verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: opts.noColor}).With().Timestamp().Logger()
}

// openRuntime connects to the configured repository, or with --dry-run
// assembles a runtime over a snapshot of the local mirror.
func openRuntime(opts *globalOptions, stderr io.Writer) (*runtime.Runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts, stderr)
	if !opts.dryRun {
		return runtime.New(cfg, nil, logger)
	}

	if _, err := os.Stat(cfg.MirrorDir); err != nil {
		return nil, fmt.Errorf("dry run needs a local mirror: %w", err)
	}
	mir := &offlineMirror{Mirror: mirror.New(mirror.Config{
		Dir:        cfg.MirrorDir,
		BaseBranch: cfg.GitHubBaseBranch,
		GitBinary:  cfg.GitBinary,
	}, nil, nil, logger)}
	store, err := snapshot(mir.Mirror, cfg.GitHubBaseBranch)
	if err != nil {
		return nil, err
	}
	return runtime.Assemble(runtime.Deps{Config: cfg, Store: store, Mirror: mir, Logger: logger}), nil
}

// offlineMirror reads the working copy as it is and never fetches or pushes.
type offlineMirror struct {
	*mirror.Mirror
}

func (m *offlineMirror) Sync(context.Context) (string, error) { return "", nil }

func (m *offlineMirror) CommitAndPush(context.Context, string) error { return nil }

// snapshot copies the ledgers and workout logs of the mirror into an
// in-memory store so jobs can run without touching GitHub.
func snapshot(m *mirror.Mirror, base string) (*docstore.MemoryStore, error) {
	paths, err := m.Glob(workout.WeeksDir + "/*/*.md")
	if err != nil {
		return nil, err
	}
	paths = append(paths, workout.ProfilePath, workout.PRsPath, workout.E1RMHistoryPath)

	files := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := m.ReadFile(p)
		if perrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files[p] = string(data)
	}
	store := docstore.NewMemoryStore(base)
	store.Seed(files)
	return store, nil
}
