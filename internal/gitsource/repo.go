package gitsource

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Config describes one tracked repository.
type Config struct {
	URL         string
	Branch      string
	CheckoutDir string
	SSHKeyPath  string
}

// Remote is the contract the reconciler and the change cache consume. *Repo
// is the git CLI implementation.
type Remote interface {
	URL() string
	// Sync makes the working copy exist and current: clone when absent,
	// pull otherwise.
	Sync(ctx context.Context) error
	// Head returns the commit hash of the working copy.
	Head(ctx context.Context) (string, error)
	// HasRemoteChanges fetches remote refs and compares the local and
	// remote branch heads.
	HasRemoteChanges(ctx context.Context) (bool, error)
	// CheckoutDir is where manifests are read from.
	Dir() string
}

// Repo drives a git working copy through the git CLI.
type Repo struct {
	logger zerolog.Logger
	cfg    Config
}

func NewRepo(logger zerolog.Logger, cfg Config) *Repo {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &Repo{
		logger: logger.With().Str("component", "gitsource").Str("repo", cfg.URL).Logger(),
		cfg:    cfg,
	}
}

func (r *Repo) URL() string { return r.cfg.URL }
func (r *Repo) Dir() string { return r.cfg.CheckoutDir }

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = os.Environ()
	if r.cfg.SSHKeyPath != "" {
		cmd.Env = append(cmd.Env,
			fmt.Sprintf("GIT_SSH_COMMAND=ssh -i %s -o StrictHostKeyChecking=no", r.cfg.SSHKeyPath))
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return strings.TrimSpace(string(output)), nil
}

func (r *Repo) cloned() bool {
	_, err := os.Stat(filepath.Join(r.cfg.CheckoutDir, ".git"))
	return err == nil
}

// Sync clones the repository if the working copy is absent, otherwise pulls
// the tracked branch.
func (r *Repo) Sync(ctx context.Context) error {
	if !r.cloned() {
		if err := os.MkdirAll(filepath.Dir(r.cfg.CheckoutDir), 0o700); err != nil {
			return fmt.Errorf("create checkout parent: %w", err)
		}
		r.logger.Info().Str("branch", r.cfg.Branch).Msg("cloning repository")
		if _, err := r.git(ctx, "clone", "--branch", r.cfg.Branch, r.cfg.URL, r.cfg.CheckoutDir); err != nil {
			return fmt.Errorf("clone %s: %w", r.cfg.URL, err)
		}
		return nil
	}

	r.logger.Debug().Msg("pulling latest changes")
	if _, err := r.git(ctx, "-C", r.cfg.CheckoutDir, "pull", "--ff-only", "origin", r.cfg.Branch); err != nil {
		return fmt.Errorf("pull %s: %w", r.cfg.URL, err)
	}
	return nil
}

// Head returns the commit hash the working copy is at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	hash, err := r.git(ctx, "-C", r.cfg.CheckoutDir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return hash, nil
}

// CheckoutBranch switches the working copy to another branch.
func (r *Repo) CheckoutBranch(ctx context.Context, branch string) error {
	if _, err := r.git(ctx, "-C", r.cfg.CheckoutDir, "checkout", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	r.cfg.Branch = branch
	return nil
}

// HasRemoteChanges fetches remote refs and reports whether the remote branch
// head differs from the local one. A repository that was never cloned always
// has changes.
func (r *Repo) HasRemoteChanges(ctx context.Context) (bool, error) {
	if !r.cloned() {
		return true, nil
	}

	if _, err := r.git(ctx, "-C", r.cfg.CheckoutDir, "fetch", "origin", r.cfg.Branch); err != nil {
		return false, fmt.Errorf("fetch %s: %w", r.cfg.URL, err)
	}

	local, err := r.Head(ctx)
	if err != nil {
		return false, err
	}
	remote, err := r.git(ctx, "-C", r.cfg.CheckoutDir, "rev-parse", "origin/"+r.cfg.Branch)
	if err != nil {
		return false, fmt.Errorf("resolve remote head: %w", err)
	}

	if local != remote {
		r.logger.Info().
			Str("local", shortHash(local)).
			Str("remote", shortHash(remote)).
			Msg("remote changes detected")
		return true, nil
	}
	r.logger.Debug().Msg("no remote changes")
	return false, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
