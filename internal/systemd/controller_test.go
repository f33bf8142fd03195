package systemd

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	args []string
}

func newFakeController(output string, err error) (*UserController, *[]call) {
	var calls []call
	c := NewUserController(zerolog.Nop())
	c.run = func(_ context.Context, args ...string) ([]byte, error) {
		calls = append(calls, call{args: args})
		return []byte(output), err
	}
	return c, &calls
}

func TestUserController_Commands(t *testing.T) {
	tests := []struct {
		name string
		do   func(c *UserController) error
		want []string
	}{
		{"daemon-reload", func(c *UserController) error { return c.DaemonReload(context.Background()) },
			[]string{"--user", "daemon-reload"}},
		{"start", func(c *UserController) error { return c.Start(context.Background(), "web-app") },
			[]string{"--user", "start", "web-app.service"}},
		{"stop", func(c *UserController) error { return c.Stop(context.Background(), "web-app") },
			[]string{"--user", "stop", "web-app.service"}},
		{"restart", func(c *UserController) error { return c.Restart(context.Background(), "web-app") },
			[]string{"--user", "restart", "web-app.service"}},
		{"reset-failed", func(c *UserController) error { return c.ResetFailed(context.Background(), "web-app") },
			[]string{"--user", "reset-failed", "web-app.service"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newFakeController("", nil)
			require.NoError(t, tt.do(c))
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.want, (*calls)[0].args)
		})
	}
}

func TestUserController_ExplicitUnitSuffixKept(t *testing.T) {
	c, calls := newFakeController("", nil)
	require.NoError(t, c.Start(context.Background(), "web-app.service"))
	assert.Equal(t, []string{"--user", "start", "web-app.service"}, (*calls)[0].args)
}

func TestUserController_ErrorIncludesOutput(t *testing.T) {
	c, _ := newFakeController("Failed to start web-app.service: Unit not found.\n", errors.New("exit status 5"))
	err := c.Start(context.Background(), "web-app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unit not found")
	assert.Contains(t, err.Error(), "exit status 5")
}

func TestUserController_IsActive(t *testing.T) {
	c, _ := newFakeController("active\n", nil)
	active, err := c.IsActive(context.Background(), "web-app")
	require.NoError(t, err)
	assert.True(t, active)

	// Non-zero exit with a state on stdout is an answer, not a failure.
	c, _ = newFakeController("inactive\n", errors.New("exit status 3"))
	active, err = c.IsActive(context.Background(), "web-app")
	require.NoError(t, err)
	assert.False(t, active)

	c, _ = newFakeController("", errors.New("fork/exec: no such file"))
	_, err = c.IsActive(context.Background(), "web-app")
	require.Error(t, err)
}

func TestUserController_ActiveUnits(t *testing.T) {
	c := NewUserController(zerolog.Nop())
	c.run = func(_ context.Context, args ...string) ([]byte, error) {
		unit := args[len(args)-1]
		if unit == "a.service" {
			return []byte("active\n"), nil
		}
		return []byte("inactive\n"), errors.New("exit status 3")
	}

	active, err := c.ActiveUnits(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, active)
}

func TestUserController_Status(t *testing.T) {
	c, calls := newFakeController("ActiveState=active\nSubState=running\n", nil)
	status, err := c.Status(context.Background(), "web-app")
	require.NoError(t, err)
	assert.Equal(t, UnitStatus{ActiveState: "active", SubState: "running"}, status)
	assert.True(t, status.Active())
	assert.False(t, status.Failed())
	assert.Contains(t, (*calls)[0].args, "show")

	c, _ = newFakeController("ActiveState=failed\nSubState=failed\n", nil)
	status, err = c.Status(context.Background(), "web-app")
	require.NoError(t, err)
	assert.True(t, status.Failed())
}
