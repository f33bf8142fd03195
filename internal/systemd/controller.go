package systemd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Controller abstracts systemd unit control so the reconciler and CLI work
// identically against the real user manager and against test doubles.
type Controller interface {
	// DaemonReload tells systemd to re-scan unit definitions. Required after
	// quadlet files change for the generator to pick them up.
	DaemonReload(ctx context.Context) error

	// Start starts a service unit.
	Start(ctx context.Context, unit string) error

	// Stop stops a service unit.
	Stop(ctx context.Context, unit string) error

	// Restart fully stops and starts a service unit.
	Restart(ctx context.Context, unit string) error

	// IsActive reports whether the unit is in the "active" state.
	IsActive(ctx context.Context, unit string) (bool, error)

	// Status returns the unit's ActiveState and SubState, e.g. "active"
	// and "running".
	Status(ctx context.Context, unit string) (UnitStatus, error)

	// ResetFailed clears the failed state of a unit so a later start is not
	// rate-limited by previous crashes.
	ResetFailed(ctx context.Context, unit string) error

	// ActiveUnits filters a candidate list down to the units currently
	// active.
	ActiveUnits(ctx context.Context, units []string) ([]string, error)
}

// UnitStatus is the subset of systemd unit properties the reconciler needs.
type UnitStatus struct {
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// Active reports whether the unit is running.
func (s UnitStatus) Active() bool { return s.ActiveState == "active" }

// Failed reports whether the unit entered the failed state.
func (s UnitStatus) Failed() bool { return s.ActiveState == "failed" }

// runner executes one systemctl invocation and returns its combined output.
// Injected in tests.
type runner func(ctx context.Context, args ...string) ([]byte, error)

func execSystemctl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "systemctl", args...).CombinedOutput()
}

// UserController implements Controller against the per-user systemd instance
// (systemctl --user), which is where quadlet generates rootless container
// units.
type UserController struct {
	logger zerolog.Logger
	run    runner
}

func NewUserController(logger zerolog.Logger) *UserController {
	return &UserController{
		logger: logger.With().Str("component", "systemd").Logger(),
		run:    execSystemctl,
	}
}

func (c *UserController) sysctl(ctx context.Context, args ...string) error {
	full := append([]string{"--user"}, args...)
	if output, err := c.run(ctx, full...); err != nil {
		return fmt.Errorf("systemctl --user %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}

func (c *UserController) DaemonReload(ctx context.Context) error {
	c.logger.Debug().Msg("daemon-reload")
	return c.sysctl(ctx, "daemon-reload")
}

func (c *UserController) Start(ctx context.Context, unit string) error {
	c.logger.Info().Str("unit", unit).Msg("starting unit")
	return c.sysctl(ctx, "start", unitName(unit))
}

func (c *UserController) Stop(ctx context.Context, unit string) error {
	c.logger.Info().Str("unit", unit).Msg("stopping unit")
	return c.sysctl(ctx, "stop", unitName(unit))
}

func (c *UserController) Restart(ctx context.Context, unit string) error {
	c.logger.Info().Str("unit", unit).Msg("restarting unit")
	return c.sysctl(ctx, "restart", unitName(unit))
}

func (c *UserController) IsActive(ctx context.Context, unit string) (bool, error) {
	output, err := c.run(ctx, "--user", "is-active", unitName(unit))
	state := strings.TrimSpace(string(output))
	if err != nil {
		// is-active exits non-zero for any state other than "active".
		// That is an answer, not a failure.
		if state != "" {
			return false, nil
		}
		return false, fmt.Errorf("systemctl --user is-active %s: %w", unit, err)
	}
	return state == "active", nil
}

func (c *UserController) Status(ctx context.Context, unit string) (UnitStatus, error) {
	output, err := c.run(ctx, "--user", "show", unitName(unit),
		"--property=ActiveState", "--property=SubState", "--no-pager")
	if err != nil {
		return UnitStatus{}, fmt.Errorf("systemctl --user show %s: %s: %w", unit, strings.TrimSpace(string(output)), err)
	}
	return parseShowOutput(string(output)), nil
}

func (c *UserController) ResetFailed(ctx context.Context, unit string) error {
	return c.sysctl(ctx, "reset-failed", unitName(unit))
}

func (c *UserController) ActiveUnits(ctx context.Context, units []string) ([]string, error) {
	var active []string
	for _, unit := range units {
		ok, err := c.IsActive(ctx, unit)
		if err != nil {
			return nil, err
		}
		if ok {
			active = append(active, unit)
		}
	}
	return active, nil
}

// unitName appends the .service suffix quadlet-generated units carry.
func unitName(unit string) string {
	if strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}

func parseShowOutput(output string) UnitStatus {
	var status UnitStatus
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "ActiveState":
			status.ActiveState = value
		case "SubState":
			status.SubState = value
		}
	}
	return status
}
