package main

import (
	"fmt"

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

// runtime wires the same components the daemon runs, so CLI commands share
// the reconciliation code paths instead of shelling out around them.
type runtime struct {
	cfg       *config.Config
	store     *state.Store
	orch      *orchestrator.Orchestrator
	processor *manifest.Processor
	services  systemd.Controller
}

func newRuntime() (*runtime, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	// CLI output stays on stdout; component logs go quiet unless asked for.
	logger := logging.NewLogger("quadops", cfg.LogLevel)

	db, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open state database: %w", err)
	}
	if err := state.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := state.New(db, logger)
	processor := manifest.NewProcessor(logger, cfg.Paths.ManagedDir, cfg.Paths.StagingDir, cfg.Paths.BackupDir)
	services := systemd.NewUserController(logger)

	orch := orchestrator.New(logger, orchestrator.Deps{
		Store:     store,
		Sources:   gitsource.NewChangeCache(logger, gitsource.OpenRepo),
		Manifests: processor,
		Services:  services,
		Health:    health.NewPodmanChecker(logger),
		Metrics:   metrics.Nop{},
	})

	rt := &runtime{cfg: cfg, store: store, orch: orch, processor: processor, services: services}
	return rt, func() { db.Close() }, nil
}

func (rt *runtime) app(name string) (config.AppConfig, error) {
	app, ok := rt.cfg.App(name)
	if !ok {
		return config.AppConfig{}, fmt.Errorf("application %q is not configured", name)
	}
	return app, nil
}
