package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quadops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
apps:
  - name: web
    git:
      url: git@example.com:org/web.git
`

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval.Std())
	assert.Equal(t, ":8080", cfg.HTTPListenAddr)
	assert.Equal(t, ":9090", cfg.MetricsListenAddr)
	assert.NotEmpty(t, cfg.Paths.StateDB)
	assert.Contains(t, cfg.Paths.ManagedDir, filepath.Join(".config", "containers", "systemd"))

	require.Len(t, cfg.Apps, 1)
	app := cfg.Apps[0]
	assert.True(t, app.IsEnabled())
	assert.Equal(t, "main", app.Git.Branch)
	assert.Contains(t, app.Git.CheckoutDir, filepath.Join("checkouts", "web"))
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
log_level: debug
poll_interval: 1m
http_listen_addr: ":7070"
metrics_listen_addr: ":7071"
paths:
  state_db: /tmp/quadops/state.db
  managed_dir: /tmp/quadops/managed
influx:
  url: http://localhost:8086
  token: secret
  org: home
  bucket: quadops
apps:
  - name: web
    description: public site
    env:
      PORT: "8080"
    git:
      url: git@example.com:org/web.git
      branch: production
  - name: worker
    enabled: false
    manifest_dir: /srv/worker/manifests
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.PollInterval.Std())
	assert.Equal(t, "/tmp/quadops/state.db", cfg.Paths.StateDB)
	require.NotNil(t, cfg.Influx)
	assert.Equal(t, "http://localhost:8086", cfg.Influx.URL)

	web, ok := cfg.App("web")
	require.True(t, ok)
	assert.Equal(t, "production", web.Git.Branch)
	assert.Equal(t, "8080", web.Env["PORT"])

	worker, ok := cfg.App("worker")
	require.True(t, ok)
	assert.False(t, worker.IsEnabled())

	enabled := cfg.EnabledApps()
	require.Len(t, enabled, 1)
	assert.Equal(t, "web", enabled[0].Name)
}

func TestLoad_EnvFallbacks(t *testing.T) {
	t.Setenv("QUADOPS_LOG_LEVEL", "warn")
	t.Setenv("QUADOPS_STATE_DB", "/var/tmp/custom.db")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/var/tmp/custom.db", cfg.Paths.StateDB)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no apps", "log_level: info\n", "validate config"},
		{"app without source", "apps:\n  - name: web\n", "needs either a git block or a manifest_dir"},
		{"git without url", "apps:\n  - name: web\n    git:\n      branch: main\n", "validate config"},
		{"invalid app name", "apps:\n  - name: 'has spaces'\n    manifest_dir: /srv/x\n", "validate config"},
		{"duplicate app names", "apps:\n  - name: web\n    manifest_dir: /srv/a\n  - name: web\n    manifest_dir: /srv/b\n", "duplicate app name"},
		{"poll interval too low", "poll_interval: 1s\napps:\n  - name: web\n    manifest_dir: /srv/x\n", "below 10s minimum"},
		{"influx missing token", "influx:\n  url: http://localhost:8086\n  org: o\n  bucket: b\napps:\n  - name: web\n    manifest_dir: /srv/x\n", "validate config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
