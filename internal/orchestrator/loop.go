package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/edvin/quadops/internal/config"
)

// RunLoop reconciles all enabled applications on a fixed interval until the
// context is canceled. Shutdown is cooperative: cancellation is honored
// between passes, never mid-reconciliation.
func (o *Orchestrator) RunLoop(ctx context.Context, apps []config.AppConfig, interval time.Duration) error {
	o.logger.Info().
		Dur("interval", interval).
		Int("apps", len(apps)).
		Msg("reconcile loop started")

	for {
		o.RunPass(ctx, apps)

		select {
		case <-ctx.Done():
			o.logger.Info().Msg("reconcile loop stopping")
			return ctx.Err()
		case <-time.After(jittered(interval)):
		}
	}
}

// RunPass reconciles every enabled application once, strictly sequentially.
// A panic anywhere in the pass is caught so the loop survives; individual
// application failures are already contained by Reconcile.
func (o *Orchestrator) RunPass(ctx context.Context, apps []config.AppConfig) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Msg("reconcile pass crashed")
		}
	}()

	start := time.Now()
	o.sources.ResetCycle()

	for _, app := range apps {
		if !app.IsEnabled() {
			continue
		}
		if err := o.Reconcile(ctx, app); err != nil {
			// Already persisted and logged; the pass continues.
			o.logger.Debug().Err(err).Str("app", app.Name).Msg("application reconcile failed")
		}
	}

	o.UpdateActiveGauge(ctx)
	o.logger.Debug().Dur("elapsed", time.Since(start)).Msg("reconcile pass finished")
}

// jittered spreads wakeups by up to 10% so multiple hosts polling the same
// remotes do not synchronize.
func jittered(interval time.Duration) time.Duration {
	if interval <= 0 {
		return interval
	}
	return interval + time.Duration(rand.Int63n(int64(interval)/10+1))
}
