package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/quadops/internal/api"
	"github.com/edvin/quadops/internal/config"
	"github.com/edvin/quadops/internal/gitsource"
	"github.com/edvin/quadops/internal/health"
	"github.com/edvin/quadops/internal/logging"
	"github.com/edvin/quadops/internal/manifest"
	"github.com/edvin/quadops/internal/metrics"
	"github.com/edvin/quadops/internal/orchestrator"
	"github.com/edvin/quadops/internal/state"
	"github.com/edvin/quadops/internal/systemd"
)

func defaultConfigPath() string {
	if env := os.Getenv("QUADOPS_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "quadops", "config.yaml")
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger("quadopsd", cfg.LogLevel)

	db, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open state database")
	}
	defer db.Close()

	if err := state.RunMigrations(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	store := state.New(db, logger)

	checker := health.NewPodmanChecker(logger)
	if err := checker.Available(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("podman unavailable")
	}

	recorder := metrics.Multi{metrics.NewPromRecorder()}
	if cfg.Influx != nil {
		influx := metrics.NewInfluxRecorder(logger, cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer influx.Close()
		recorder = append(recorder, influx)
	}

	orch := orchestrator.New(logger, orchestrator.Deps{
		Store:     store,
		Sources:   gitsource.NewChangeCache(logger, gitsource.OpenRepo),
		Manifests: manifest.NewProcessor(logger, cfg.Paths.ManagedDir, cfg.Paths.StagingDir, cfg.Paths.BackupDir),
		Services:  systemd.NewUserController(logger),
		Health:    checker,
		Metrics:   recorder,
	})

	httpServer := api.NewHTTPServer(cfg.HTTPListenAddr, api.NewServer(logger, store))
	metricsServer := metrics.NewServer(cfg.MetricsListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := orch.RunLoop(ctx, cfg.EnabledApps(), cfg.PollInterval.Std())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting status server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	// Keep the active-container gauge fresh between passes.
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				orch.UpdateActiveGauge(ctx)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("status server shutdown")
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("stopped")
}
