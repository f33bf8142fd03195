package gitsource

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// OpenFunc opens a Remote for a repository config. Production code passes
// OpenRepo; tests substitute fakes.
type OpenFunc func(logger zerolog.Logger, cfg Config) Remote

// OpenRepo is the git CLI opener.
func OpenRepo(logger zerolog.Logger, cfg Config) Remote {
	return NewRepo(logger, cfg)
}

// ChangeCache holds one long-lived Remote per repository URL and dedupes
// remote-change checks within a reconciliation cycle. A fetch is a network
// round-trip; N applications polling the same repository must not multiply
// that cost by N.
type ChangeCache struct {
	logger zerolog.Logger
	open   OpenFunc

	mu         sync.Mutex
	handles    map[string]Remote
	checked    map[string]struct{}
	hasChanges map[string]struct{}
}

func NewChangeCache(logger zerolog.Logger, open OpenFunc) *ChangeCache {
	return &ChangeCache{
		logger:     logger.With().Str("component", "change-cache").Logger(),
		open:       open,
		handles:    make(map[string]Remote),
		checked:    make(map[string]struct{}),
		hasChanges: make(map[string]struct{}),
	}
}

// Handle returns the shared Remote for a repository URL, opening it on first
// use. Applications sharing a URL share the handle.
func (c *ChangeCache) Handle(cfg Config) Remote {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote, ok := c.handles[cfg.URL]; ok {
		return remote
	}
	c.logger.Info().Str("repo", cfg.URL).Msg("opening repository handle")
	remote := c.open(c.logger, cfg)
	c.handles[cfg.URL] = remote
	return remote
}

// CheckForChanges reports whether the repository has remote changes,
// performing at most one fetch per URL per cycle. A failed check reports
// changes so a broken fetch never suppresses a deployment.
func (c *ChangeCache) CheckForChanges(ctx context.Context, remote Remote) bool {
	url := remote.URL()

	c.mu.Lock()
	if _, done := c.checked[url]; done {
		_, has := c.hasChanges[url]
		c.mu.Unlock()
		c.logger.Debug().Str("repo", url).Bool("has_changes", has).Msg("using cached change status")
		return has
	}
	c.mu.Unlock()

	has, err := remote.HasRemoteChanges(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("repo", url).Msg("change check failed, assuming changes")
		has = true
	}

	c.mu.Lock()
	c.checked[url] = struct{}{}
	if has {
		c.hasChanges[url] = struct{}{}
	}
	c.mu.Unlock()
	return has
}

// ResetCycle clears the per-cycle memo. Called exactly once before each full
// pass over the applications.
func (c *ChangeCache) ResetCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = make(map[string]struct{})
	c.hasChanges = make(map[string]struct{})
}
