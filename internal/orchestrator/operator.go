package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edvin/quadops/internal/model"
	"github.com/edvin/quadops/internal/systemd"
)

// Operator commands act on the services the store knows for an application.
// They write Service rows without a deployment id: an operator stop or start
// is not a deployment.

// StartApp starts every known service of an application.
func (o *Orchestrator) StartApp(ctx context.Context, appName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startKnownServices(ctx, appName)
}

func (o *Orchestrator) startKnownServices(ctx context.Context, appName string) error {
	services, err := o.appServices(ctx, appName)
	if err != nil {
		return err
	}

	var failed []string
	for _, name := range services {
		// Clear a leftover failed state so a crashed unit is not blocked
		// by its start rate limit.
		if err := o.services.ResetFailed(ctx, name); err != nil {
			o.logger.Debug().Err(err).Str("service", name).Msg("reset-failed skipped")
		}
		o.setServiceState(ctx, appName, name, model.ServiceStarting, nil, nil)
		if err := o.services.Start(ctx, name); err != nil {
			o.logger.Error().Err(err).Str("app", appName).Str("service", name).Msg("operator start failed")
			o.setServiceState(ctx, appName, name, model.ServiceFailed, nil, nil)
			o.recordServiceError(ctx, appName, name, fmt.Errorf("operator start: %w", err))
			failed = append(failed, name)
			continue
		}
		o.setServiceState(ctx, appName, name, model.ServiceRunning, nil, nil)
	}
	if len(failed) > 0 {
		return fmt.Errorf("start %s: %s failed", appName, strings.Join(failed, ", "))
	}
	return nil
}

// StopApp stops every known service of an application. The services move
// through stopping to stopped; a stop failure leaves the service in error.
func (o *Orchestrator) StopApp(ctx context.Context, appName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopKnownServices(ctx, appName)
}

func (o *Orchestrator) stopKnownServices(ctx context.Context, appName string) error {
	services, err := o.appServices(ctx, appName)
	if err != nil {
		return err
	}

	var failed []string
	for _, name := range services {
		o.setServiceState(ctx, appName, name, model.ServiceStopping, nil, nil)
		if err := o.services.Stop(ctx, name); err != nil {
			o.logger.Error().Err(err).Str("app", appName).Str("service", name).Msg("operator stop failed")
			o.setServiceState(ctx, appName, name, model.ServiceError, nil, nil)
			o.recordServiceError(ctx, appName, name, fmt.Errorf("operator stop: %w", err))
			failed = append(failed, name)
			continue
		}
		o.setServiceState(ctx, appName, name, model.ServiceStopped, nil, nil)
	}
	if len(failed) > 0 {
		return fmt.Errorf("stop %s: %s failed", appName, strings.Join(failed, ", "))
	}
	return nil
}

// RestartApp stops the application, waits briefly for the units to wind
// down, and starts it again. A partial stop is not fatal: starting what can
// be started beats leaving the app half-stopped.
func (o *Orchestrator) RestartApp(ctx context.Context, appName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.stopKnownServices(ctx, appName); err != nil {
		o.logger.Warn().Err(err).Str("app", appName).Msg("some services failed to stop, starting anyway")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	return o.startKnownServices(ctx, appName)
}

// AppStatus is the full status projection for one application.
func (o *Orchestrator) AppStatus(ctx context.Context, appName string) (*model.AppStatusSummary, error) {
	return o.store.AppStatusSummary(ctx, appName)
}

// AllStatuses projects the status of every enabled application.
func (o *Orchestrator) AllStatuses(ctx context.Context) (map[string]*model.AppStatusSummary, error) {
	return o.store.AllApplicationStatuses(ctx)
}

// LiveUnitStates asks systemd for the current state of every service the
// store knows for an application. The store records what the reconciler last
// observed; this is what the units are doing right now.
func (o *Orchestrator) LiveUnitStates(ctx context.Context, appName string) (map[string]systemd.UnitStatus, error) {
	services, err := o.appServices(ctx, appName)
	if err != nil {
		return nil, err
	}

	states := make(map[string]systemd.UnitStatus, len(services))
	for _, name := range services {
		status, err := o.services.Status(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("unit status for %s: %w", name, err)
		}
		states[name] = status
	}
	return states, nil
}

// UpdateActiveGauge publishes the running-service count to the metrics
// recorder.
func (o *Orchestrator) UpdateActiveGauge(ctx context.Context) {
	count, err := o.store.CountServicesInState(ctx, model.ServiceRunning)
	if err != nil {
		o.logger.Warn().Err(err).Msg("active service count failed")
		return
	}
	o.recorder.SetActiveContainers(count)
}

func (o *Orchestrator) appServices(ctx context.Context, appName string) ([]string, error) {
	states, err := o.store.AppServiceStates(ctx, appName)
	if err != nil {
		return nil, fmt.Errorf("list services for %s: %w", appName, err)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("no known services for %s", appName)
	}

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	// Stable order keeps logs and failures deterministic.
	sort.Strings(names)
	return names, nil
}
