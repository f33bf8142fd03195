package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Duration parses human-readable YAML values like "5m" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts to the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// GitConfig describes the repository an application is deployed from.
type GitConfig struct {
	URL         string `yaml:"url" validate:"required"`
	Branch      string `yaml:"branch"`
	CheckoutDir string `yaml:"checkout_dir"`
	SSHKeyPath  string `yaml:"ssh_key_path"`
	// ManifestSubdir is the directory inside the repository holding the
	// quadlet files. Empty means the repository root.
	ManifestSubdir string `yaml:"manifest_subdir"`
}

// AppConfig is one managed application.
type AppConfig struct {
	Name        string `yaml:"name" validate:"required,hostname_rfc1123"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
	// ManifestDir holds quadlet files for applications deployed from a
	// local directory instead of git.
	ManifestDir string            `yaml:"manifest_dir"`
	Env         map[string]string `yaml:"env"`
	Git         *GitConfig        `yaml:"git"`
}

// IsEnabled defaults to true when the field is omitted.
func (a AppConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// PathsConfig holds the on-disk layout.
type PathsConfig struct {
	StateDB      string `yaml:"state_db"`
	ManagedDir   string `yaml:"managed_dir"`
	StagingDir   string `yaml:"staging_dir"`
	BackupDir    string `yaml:"backup_dir"`
	CheckoutRoot string `yaml:"checkout_root"`
}

// InfluxConfig enables the optional InfluxDB exporter.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"required"`
	Token  string `yaml:"token" validate:"required"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
}

type Config struct {
	LogLevel          string        `yaml:"log_level"`
	PollInterval      Duration      `yaml:"poll_interval"`
	HTTPListenAddr    string        `yaml:"http_listen_addr"`
	MetricsListenAddr string        `yaml:"metrics_listen_addr"`
	Paths             PathsConfig   `yaml:"paths"`
	Influx            *InfluxConfig `yaml:"influx"`
	Apps              []AppConfig   `yaml:"apps" validate:"required,min=1,dive"`
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "quadops")

	if c.LogLevel == "" {
		c.LogLevel = getEnv("QUADOPS_LOG_LEVEL", "info")
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(5 * time.Minute)
	}
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = getEnv("QUADOPS_HTTP_ADDR", ":8080")
	}
	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = getEnv("QUADOPS_METRICS_ADDR", ":9090")
	}
	if c.Paths.StateDB == "" {
		c.Paths.StateDB = getEnv("QUADOPS_STATE_DB", filepath.Join(dataDir, "state.db"))
	}
	if c.Paths.ManagedDir == "" {
		// Rootless quadlet generator directory.
		c.Paths.ManagedDir = getEnv("QUADOPS_MANAGED_DIR", filepath.Join(home, ".config", "containers", "systemd"))
	}
	if c.Paths.StagingDir == "" {
		c.Paths.StagingDir = filepath.Join(dataDir, "staging")
	}
	if c.Paths.BackupDir == "" {
		c.Paths.BackupDir = filepath.Join(dataDir, "backups")
	}
	if c.Paths.CheckoutRoot == "" {
		c.Paths.CheckoutRoot = filepath.Join(dataDir, "checkouts")
	}

	for i := range c.Apps {
		app := &c.Apps[i]
		if app.Git != nil {
			if app.Git.Branch == "" {
				app.Git.Branch = "main"
			}
			if app.Git.CheckoutDir == "" {
				app.Git.CheckoutDir = filepath.Join(c.Paths.CheckoutRoot, app.Name)
			}
		}
	}
}

// Validate enforces structural constraints plus the cross-field rules the
// tag language cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Apps))
	for _, app := range c.Apps {
		if _, dup := seen[app.Name]; dup {
			return fmt.Errorf("validate config: duplicate app name %q", app.Name)
		}
		seen[app.Name] = struct{}{}

		if app.Git == nil && app.ManifestDir == "" {
			return fmt.Errorf("validate config: app %q needs either a git block or a manifest_dir", app.Name)
		}
	}

	if c.PollInterval.Std() < 10*time.Second {
		return fmt.Errorf("validate config: poll_interval %s below 10s minimum", c.PollInterval)
	}
	return nil
}

// App looks an application up by name.
func (c *Config) App(name string) (AppConfig, bool) {
	for _, app := range c.Apps {
		if app.Name == name {
			return app, true
		}
	}
	return AppConfig{}, false
}

// EnabledApps returns the applications the reconcile loop should visit.
func (c *Config) EnabledApps() []AppConfig {
	var apps []AppConfig
	for _, app := range c.Apps {
		if app.IsEnabled() {
			apps = append(apps, app)
		}
	}
	return apps
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
