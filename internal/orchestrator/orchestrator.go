package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/quadops/internal/config"
	"github.com/edvin/quadops/internal/gitsource"
	"github.com/edvin/quadops/internal/health"
	"github.com/edvin/quadops/internal/metrics"
	"github.com/edvin/quadops/internal/model"
	"github.com/edvin/quadops/internal/state"
	"github.com/edvin/quadops/internal/systemd"
)

// ManifestDeployer is the slice of the manifest processor the reconciler
// consumes.
type ManifestDeployer interface {
	ProcessAndDeploy(appName, sourceDir string, env map[string]string) ([]string, error)
}

// Deps are the collaborators one Orchestrator drives.
type Deps struct {
	Store     *state.Store
	Sources   *gitsource.ChangeCache
	Manifests ManifestDeployer
	Services  systemd.Controller
	Health    health.Checker
	Metrics   metrics.Recorder

	// Stabilization bounds the per-service wait between "started" and
	// "production ready". Zero means the 30s default.
	Stabilization time.Duration
}

// Orchestrator runs the reconciliation state machine. Exactly one
// reconciliation executes at a time; operator commands and the poll loop
// share the same mutex.
type Orchestrator struct {
	logger        zerolog.Logger
	store         *state.Store
	sources       *gitsource.ChangeCache
	manifests     ManifestDeployer
	services      systemd.Controller
	checker       health.Checker
	recorder      metrics.Recorder
	stabilization time.Duration

	mu sync.Mutex
}

func New(logger zerolog.Logger, deps Deps) *Orchestrator {
	stabilization := deps.Stabilization
	if stabilization == 0 {
		stabilization = 30 * time.Second
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Orchestrator{
		logger:        logger.With().Str("component", "orchestrator").Logger(),
		store:         deps.Store,
		sources:       deps.Sources,
		manifests:     deps.Manifests,
		services:      deps.Services,
		checker:       deps.Health,
		recorder:      recorder,
		stabilization: stabilization,
	}
}

// Reconcile drives one application through a full reconciliation attempt:
// skip check, source sync, manifest deployment, a single unit reload, service
// starts, immediate health probes, and the stabilization wait. Any failure
// closes the deployment as failed and is recorded; the error is returned for
// logging but must not abort the caller's pass.
func (o *Orchestrator) Reconcile(ctx context.Context, app config.AppConfig) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	var deploymentID string
	commit := model.CommitLocal
	skipped := false

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconcile panic: %v", r)
		}
		if err != nil {
			o.closeFailed(app.Name, deploymentID, commit, err)
			o.recorder.RecordDeployment(app.Name, model.DeploymentFailed, time.Since(start))
		} else if !skipped {
			o.recorder.RecordDeployment(app.Name, model.DeploymentSuccess, time.Since(start))
		}
	}()

	logger := o.logger.With().Str("app", app.Name).Logger()

	if err := o.store.RegisterApplication(ctx, app.Name, app.Description); err != nil {
		// Best effort: a registration hiccup must not block deployment.
		logger.Warn().Err(err).Msg("application registration failed")
	}

	var sourceDir string
	if app.Git != nil {
		remote := o.sources.Handle(gitsource.Config{
			URL:         app.Git.URL,
			Branch:      app.Git.Branch,
			CheckoutDir: app.Git.CheckoutDir,
			SSHKeyPath:  app.Git.SSHKeyPath,
		})

		// Shared repositories with no new commits and a successful last
		// deployment need no work at all.
		if !o.sources.CheckForChanges(ctx, remote) {
			last, lerr := o.store.LastDeployment(ctx, app.Name)
			if lerr == nil && last.Status == model.DeploymentSuccess {
				logger.Debug().Str("commit", last.CommitHash).Msg("no changes, skipping")
				skipped = true
				return nil
			}
		}

		gitStart := time.Now()
		if serr := remote.Sync(ctx); serr != nil {
			o.recorder.RecordGitOperation("sync", "failure", time.Since(gitStart))
			return fmt.Errorf("sync source %s: %w", app.Git.URL, serr)
		}
		o.recorder.RecordGitOperation("sync", "success", time.Since(gitStart))

		head, herr := remote.Head(ctx)
		if herr != nil {
			return fmt.Errorf("resolve commit: %w", herr)
		}
		commit = head
		sourceDir = filepath.Join(remote.Dir(), app.Git.ManifestSubdir)
	} else {
		sourceDir = app.ManifestDir
		if _, serr := os.Stat(sourceDir); serr != nil {
			return fmt.Errorf("manifest directory %s: %w", sourceDir, serr)
		}
	}

	deploymentID, err = o.store.StartDeployment(ctx, app.Name, commit)
	if err != nil {
		deploymentID = ""
		return fmt.Errorf("open deployment: %w", err)
	}
	logger.Info().Str("deployment_id", deploymentID).Str("commit", commit).Msg("deployment started")

	containers, err := o.manifests.ProcessAndDeploy(app.Name, sourceDir, app.Env)
	if err != nil {
		return fmt.Errorf("process manifests: %w", err)
	}
	for _, name := range containers {
		o.setServiceState(ctx, app.Name, name, model.ServiceDeployed, &deploymentID, nil)
	}

	// One reload for the whole application, after every file is in place.
	if err = o.services.DaemonReload(ctx); err != nil {
		return fmt.Errorf("reload unit definitions: %w", err)
	}

	if err = o.startServices(ctx, logger, app.Name, deploymentID, containers); err != nil {
		return err
	}
	if err = o.probeServices(ctx, logger, app.Name, containers); err != nil {
		return err
	}
	if err = o.awaitStabilization(ctx, logger, app.Name, containers); err != nil {
		return err
	}

	if err = o.store.FinishDeployment(ctx, deploymentID, model.DeploymentSuccess, ""); err != nil {
		return fmt.Errorf("close deployment: %w", err)
	}
	logger.Info().
		Str("deployment_id", deploymentID).
		Dur("elapsed", time.Since(start)).
		Int("services", len(containers)).
		Msg("deployment succeeded")
	return nil
}

// startServices starts every container unit in deployment order. All
// services are attempted even after a failure so the operator gets complete
// diagnostics, but any failure fails the deployment.
func (o *Orchestrator) startServices(ctx context.Context, logger zerolog.Logger, appName, deploymentID string, containers []string) error {
	var failed []string
	for _, name := range containers {
		o.setServiceState(ctx, appName, name, model.ServiceStarting, &deploymentID, nil)

		if err := o.services.Start(ctx, name); err != nil {
			logger.Error().Err(err).Str("service", name).Msg("service start failed")
			o.setServiceState(ctx, appName, name, model.ServiceFailed, &deploymentID, nil)
			o.recordServiceError(ctx, appName, name, fmt.Errorf("start service: %w", err))
			failed = append(failed, name)
			continue
		}

		var containerID *string
		if id, err := o.checker.ContainerID(ctx, name); err == nil && id != "" {
			containerID = &id
		}
		o.setServiceState(ctx, appName, name, model.ServiceRunning, &deploymentID, containerID)
	}
	if len(failed) > 0 {
		return fmt.Errorf("start services: %s failed", strings.Join(failed, ", "))
	}
	return nil
}

// probeServices runs one immediate health probe per started service. Probing
// continues past failures so every service gets a recorded result.
func (o *Orchestrator) probeServices(ctx context.Context, logger zerolog.Logger, appName string, containers []string) error {
	var unhealthy []string
	for _, name := range containers {
		probeStart := time.Now()
		result := o.checker.Check(ctx, name)
		o.recorder.RecordHealthCheck(name, result.Status, time.Since(probeStart))

		if err := o.store.AddHealthCheck(ctx, appName, name, result.Status, result.Details()); err != nil {
			logger.Warn().Err(err).Str("service", name).Msg("health check persistence failed")
		}
		if result.Healthy {
			continue
		}

		nextState := model.ServiceUnhealthy
		if result.Status == health.StatusError {
			nextState = model.ServiceError
		}
		o.setServiceState(ctx, appName, name, nextState, nil, nil)
		o.recordServiceError(ctx, appName, name, fmt.Errorf("health probe: %s", result.Status))
		o.logServiceDiagnostics(ctx, logger, name)
		unhealthy = append(unhealthy, name)
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("health probe: %s unhealthy", strings.Join(unhealthy, ", "))
	}
	return nil
}

// awaitStabilization distinguishes "started" from "production ready": every
// service must stay healthy through a bounded polling window.
func (o *Orchestrator) awaitStabilization(ctx context.Context, logger zerolog.Logger, appName string, containers []string) error {
	var unstable []string
	for _, name := range containers {
		if o.checker.WaitUntilHealthy(ctx, name, o.stabilization) {
			continue
		}
		logger.Warn().Str("service", name).Dur("window", o.stabilization).Msg("service did not stabilize")
		o.setServiceState(ctx, appName, name, model.ServiceUnstable, nil, nil)
		o.recordServiceError(ctx, appName, name, fmt.Errorf("service did not stabilize within %s", o.stabilization))
		unstable = append(unstable, name)
	}
	if len(unstable) > 0 {
		return fmt.Errorf("stabilization: %s not stable within %s", strings.Join(unstable, ", "), o.stabilization)
	}
	return nil
}

// closeFailed finishes the open deployment as failed, or inserts a fallback
// failed record when the attempt never got one open, and files an
// application-level error. Uses a fresh context so a canceled reconcile can
// still persist its outcome.
func (o *Orchestrator) closeFailed(appName, deploymentID, commit string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := cause.Error()
	if deploymentID != "" {
		if err := o.store.FinishDeployment(ctx, deploymentID, model.DeploymentFailed, msg); err != nil && !errors.Is(err, state.ErrDeploymentClosed) {
			o.logger.Error().Err(err).Str("app", appName).Msg("failed-deployment close failed")
		}
	} else {
		if _, err := o.store.RecordDeployment(ctx, appName, commit, model.DeploymentFailed, msg); err != nil {
			o.logger.Error().Err(err).Str("app", appName).Msg("fallback deployment record failed")
		}
	}
	if err := o.store.RecordError(ctx, appName, nil, msg); err != nil {
		o.logger.Error().Err(err).Str("app", appName).Msg("error record failed")
	}
	o.logger.Error().Str("app", appName).Str("error", msg).Msg("reconciliation failed")
}

func (o *Orchestrator) setServiceState(ctx context.Context, appName, serviceName, serviceState string, deploymentID, containerID *string) {
	err := o.store.UpsertService(ctx, state.ServiceUpdate{
		AppName:      appName,
		ServiceName:  serviceName,
		State:        serviceState,
		DeploymentID: deploymentID,
		ContainerID:  containerID,
	})
	if err != nil {
		// Best effort: losing one state update is preferable to failing
		// the deployment over bookkeeping.
		o.logger.Warn().Err(err).
			Str("app", appName).
			Str("service", serviceName).
			Str("state", serviceState).
			Msg("service state update failed")
	}
}

func (o *Orchestrator) recordServiceError(ctx context.Context, appName, serviceName string, cause error) {
	if err := o.store.RecordError(ctx, appName, &serviceName, cause.Error()); err != nil {
		o.logger.Warn().Err(err).Str("app", appName).Str("service", serviceName).Msg("error record failed")
	}
}

// logServiceDiagnostics surfaces recent container output when a probe fails.
func (o *Orchestrator) logServiceDiagnostics(ctx context.Context, logger zerolog.Logger, name string) {
	logs, err := o.checker.Logs(ctx, name, 50)
	if err != nil {
		logger.Debug().Err(err).Str("service", name).Msg("container logs unavailable")
		return
	}
	logger.Info().Str("service", name).Str("logs", logs).Msg("container diagnostics")
}
