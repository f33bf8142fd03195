package gitsource

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	url     string
	changes bool
	err     error
	fetches int
}

func (f *fakeRemote) URL() string                    { return f.url }
func (f *fakeRemote) Dir() string                    { return "/tmp/" + f.url }
func (f *fakeRemote) Sync(context.Context) error     { return nil }
func (f *fakeRemote) Head(context.Context) (string, error) { return "deadbeef", nil }

func (f *fakeRemote) HasRemoteChanges(context.Context) (bool, error) {
	f.fetches++
	return f.changes, f.err
}

func newFakeCache(remotes ...*fakeRemote) *ChangeCache {
	byURL := make(map[string]*fakeRemote)
	for _, r := range remotes {
		byURL[r.url] = r
	}
	return NewChangeCache(zerolog.Nop(), func(_ zerolog.Logger, cfg Config) Remote {
		return byURL[cfg.URL]
	})
}

func TestChangeCache_MemoizesWithinCycle(t *testing.T) {
	remote := &fakeRemote{url: "git@example.com:repo.git", changes: false}
	cache := newFakeCache(remote)
	ctx := context.Background()

	// Two checks for the same URL in one cycle: one fetch, same answer.
	assert.False(t, cache.CheckForChanges(ctx, remote))
	assert.False(t, cache.CheckForChanges(ctx, remote))
	assert.Equal(t, 1, remote.fetches)

	// A reset allows a second fetch.
	cache.ResetCycle()
	remote.changes = true
	assert.True(t, cache.CheckForChanges(ctx, remote))
	assert.Equal(t, 2, remote.fetches)
}

func TestChangeCache_MemoizesPositiveResult(t *testing.T) {
	remote := &fakeRemote{url: "git@example.com:repo.git", changes: true}
	cache := newFakeCache(remote)
	ctx := context.Background()

	assert.True(t, cache.CheckForChanges(ctx, remote))
	assert.True(t, cache.CheckForChanges(ctx, remote))
	assert.Equal(t, 1, remote.fetches)
}

func TestChangeCache_FetchErrorAssumesChanges(t *testing.T) {
	remote := &fakeRemote{url: "git@example.com:repo.git", err: errors.New("network down")}
	cache := newFakeCache(remote)

	assert.True(t, cache.CheckForChanges(context.Background(), remote))
}

func TestChangeCache_SharesHandlePerURL(t *testing.T) {
	remote := &fakeRemote{url: "git@example.com:shared.git"}
	cache := newFakeCache(remote)

	cfg := Config{URL: "git@example.com:shared.git"}
	h1 := cache.Handle(cfg)
	h2 := cache.Handle(cfg)
	require.Same(t, h1.(*fakeRemote), h2.(*fakeRemote))
}

func TestChangeCache_IndependentURLs(t *testing.T) {
	a := &fakeRemote{url: "git@example.com:a.git", changes: true}
	b := &fakeRemote{url: "git@example.com:b.git", changes: false}
	cache := newFakeCache(a, b)
	ctx := context.Background()

	assert.True(t, cache.CheckForChanges(ctx, a))
	assert.False(t, cache.CheckForChanges(ctx, b))
	assert.Equal(t, 1, a.fetches)
	assert.Equal(t, 1, b.fetches)
}
