package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		filename string
		want     Kind
	}{
		{"app.network", KindNetwork},
		{"data.volume", KindVolume},
		{"nginx.image", KindImage},
		{"web-app.container", KindContainer},
		{"settings.json", KindConfig},
		{"vars.env", KindConfig},
		{"config.toml", KindConfig},
		{"stack.yaml", KindConfig},
		{"noext", KindConfig},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.filename))
		})
	}
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("app.container"))
	assert.True(t, IsManifest("net.network"))
	assert.True(t, IsManifest("vars.env"))
	assert.True(t, IsManifest("settings.json"))
	assert.True(t, IsManifest("values.yml"))

	assert.False(t, IsManifest("README.md"))
	assert.False(t, IsManifest("app.container.bak"))
	assert.False(t, IsManifest("other.json"))
}

func TestUnitName(t *testing.T) {
	assert.Equal(t, "web-app", UnitName("web-app.container"))
	assert.Equal(t, "net", UnitName("/some/dir/net.network"))
	assert.Equal(t, "noext", UnitName("noext"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "config", KindConfig.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
