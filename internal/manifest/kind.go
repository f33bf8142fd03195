package manifest

import (
	"path/filepath"
	"strings"
)

// Kind is the closed set of manifest file types. Deployment order follows
// the dependency reality of container units: a container referencing a
// network, volume, or image must not be activated before that unit file
// exists.
type Kind int

const (
	KindNetwork Kind = iota
	KindVolume
	KindImage
	KindContainer
	KindConfig
)

// DeployOrder is the fixed order manifests are deployed in.
var DeployOrder = [...]Kind{KindNetwork, KindVolume, KindImage, KindContainer, KindConfig}

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindVolume:
		return "volume"
	case KindImage:
		return "image"
	case KindContainer:
		return "container"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

var kindByExtension = map[string]Kind{
	".network":   KindNetwork,
	".volume":    KindVolume,
	".image":     KindImage,
	".container": KindContainer,
}

// configPatterns are the free-form configuration files deployed alongside
// unit manifests.
var configPatterns = []string{
	"settings.json",
	"config.json",
	"*.env",
	"*.toml",
	"*.yaml",
	"*.yml",
}

// Classify maps a filename to its manifest kind. Pure function of the name,
// no I/O. Anything that is not a typed unit file is config.
func Classify(filename string) Kind {
	if kind, ok := kindByExtension[filepath.Ext(filename)]; ok {
		return kind
	}
	return KindConfig
}

// IsManifest reports whether a filename is part of a deployment: a typed
// unit file or a recognized configuration file.
func IsManifest(filename string) bool {
	if _, ok := kindByExtension[filepath.Ext(filename)]; ok {
		return true
	}
	base := filepath.Base(filename)
	for _, pattern := range configPatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return ok
		}
	}
	return false
}

// UnitName returns the service unit name for a manifest file: the basename
// minus its extension.
func UnitName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
