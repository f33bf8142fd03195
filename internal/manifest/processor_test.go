package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) (*Processor, string) {
	t.Helper()
	root := t.TempDir()
	p := NewProcessor(zerolog.Nop(),
		filepath.Join(root, "managed"),
		filepath.Join(root, "staging"),
		filepath.Join(root, "backups"))
	return p, root
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscover_Ordering(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")

	// Written in an order deliberately unlike the deploy order.
	writeSource(t, src, "vars.env", "PORT=8080\n")
	writeSource(t, src, "app.container", "[Container]\n")
	writeSource(t, src, "net.network", "[Network]\n")
	writeSource(t, src, "img.image", "[Image]\n")
	writeSource(t, src, "vol.volume", "[Volume]\n")
	writeSource(t, src, "README.md", "ignored\n")

	files, err := p.Discover(src)
	require.NoError(t, err)

	var kinds []Kind
	var names []string
	for _, f := range files {
		kinds = append(kinds, f.Kind)
		names = append(names, f.Name)
	}
	assert.Equal(t, []Kind{KindNetwork, KindVolume, KindImage, KindContainer, KindConfig}, kinds)
	assert.Equal(t, []string{"net", "vol", "img", "app", "vars"}, names)
}

func TestProcessAndDeploy_Success(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")

	writeSource(t, src, "net.network", "[Network]\nLabel=app=${APP_NAME}\n")
	writeSource(t, src, "vol.volume", "[Volume]\n")
	writeSource(t, src, "app.container", "[Container]\nPublishPort=${PORT}:80\n")

	containers, err := p.ProcessAndDeploy("web", src, map[string]string{"PORT": "8080"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, containers)

	// Substitution happened, APP_NAME is implicit.
	net, err := os.ReadFile(filepath.Join(root, "managed", "net.network"))
	require.NoError(t, err)
	assert.Contains(t, string(net), "app=web")

	app, err := os.ReadFile(filepath.Join(root, "managed", "app.container"))
	require.NoError(t, err)
	assert.Contains(t, string(app), "PublishPort=8080:80")

	// Deployed files carry fixed non-executable permissions.
	info, err := os.Stat(filepath.Join(root, "managed", "app.container"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestProcessAndDeploy_UnresolvedPlaceholderDeploysVerbatim(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")
	writeSource(t, src, "app.container", "[Container]\nImage=${MISSING}\n")

	containers, err := p.ProcessAndDeploy("web", src, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, containers)

	got, err := os.ReadFile(filepath.Join(root, "managed", "app.container"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "${MISSING}")
}

func TestProcessAndDeploy_BaksExistingTarget(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")
	managed := filepath.Join(root, "managed")

	writeSource(t, src, "app.container", "new content\n")
	writeSource(t, managed, "app.container", "old content\n")

	_, err := p.ProcessAndDeploy("web", src, nil)
	require.NoError(t, err)

	bak, err := os.ReadFile(filepath.Join(managed, "app.container.bak"))
	require.NoError(t, err)
	assert.Equal(t, "old content\n", string(bak))

	current, err := os.ReadFile(filepath.Join(managed, "app.container"))
	require.NoError(t, err)
	assert.Equal(t, "new content\n", string(current))

	// The displaced original was also archived with a timestamp.
	backups, err := p.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "app.container", backups[0].Name)
}

func TestProcessAndDeploy_FailureRollsBack(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")
	managed := filepath.Join(root, "managed")

	writeSource(t, src, "net.network", "[Network]\n")
	writeSource(t, managed, "net.network", "previous network\n")
	// A dangling symlink fails the read mid-way through the attempt.
	require.NoError(t, os.Symlink(filepath.Join(src, "missing"), filepath.Join(src, "app.container")))

	_, err := p.ProcessAndDeploy("web", src, nil)
	require.Error(t, err)

	// The network file copied before the failure was removed and the
	// displaced original restored.
	restored, err := os.ReadFile(filepath.Join(managed, "net.network"))
	require.NoError(t, err)
	assert.Equal(t, "previous network\n", string(restored))

	_, err = os.Stat(filepath.Join(managed, "net.network.bak"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(managed, "app.container"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessAndDeploy_EmptySourceFails(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(src, 0o755))

	_, err := p.ProcessAndDeploy("web", src, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no manifests")
}

func TestDeployedUnits(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")
	writeSource(t, src, "net.network", "[Network]\n")
	writeSource(t, src, "a.container", "[Container]\n")
	writeSource(t, src, "b.container", "[Container]\n")

	_, err := p.ProcessAndDeploy("web", src, nil)
	require.NoError(t, err)

	units, err := p.DeployedUnits()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, units[KindContainer])
	assert.Equal(t, []string{"net"}, units[KindNetwork])
}

func TestRestoreAndCleanupBackups(t *testing.T) {
	p, root := newTestProcessor(t)
	src := filepath.Join(root, "src")
	managed := filepath.Join(root, "managed")

	writeSource(t, managed, "app.container", "v1\n")
	writeSource(t, src, "app.container", "v2\n")
	_, err := p.ProcessAndDeploy("web", src, nil)
	require.NoError(t, err)

	require.NoError(t, p.RestoreBackup("app.container"))
	got, err := os.ReadFile(filepath.Join(managed, "app.container"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(got))

	require.NoError(t, p.CleanupBackups(0))
	backups, err := p.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)

	require.Error(t, p.RestoreBackup("app.container"))
}
