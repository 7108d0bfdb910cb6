// Command coachd serves the liftlog API: session branches, ledger jobs and
// analytics over the workout data repository.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/liftlog/internal/api"
	"github.com/p-blackswan/liftlog/internal/config"
	"github.com/p-blackswan/liftlog/internal/metrics"
	"github.com/p-blackswan/liftlog/internal/runtime"
)

func main() {
	configPath := flag.String("config", os.Getenv("LIFTLOG_CONFIG"), "optional TOML config file; environment variables override it")
	flag.Parse()

	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath, "")
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo).
		Bool("github_app", cfg.GitHubAppEnabled()).
		Msg("starting coachd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	rt, err := runtime.New(cfg, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build runtime")
	}

	server := api.NewServer(api.ServerConfigFrom(cfg), rt, logger)

	var wg sync.WaitGroup

	// Clone the mirror and report leftovers from interrupted finalizes
	// without holding up the listener.
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Warm(ctx)
		anomalies, err := rt.Inspect(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("session branch inspection failed")
			return
		}
		for _, a := range anomalies {
			logger.Warn().Str("branch", a.Branch).Str("kind", string(a.Kind)).Msg("session branch needs repair")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("coachd stopped")
}
