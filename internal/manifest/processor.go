package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// File is one discovered manifest.
type File struct {
	Name string // unit name (basename minus extension)
	Path string
	Kind Kind
}

// Processor discovers, template-substitutes, orders, and copies manifest
// files into the managed directory.
type Processor struct {
	logger     zerolog.Logger
	managedDir string
	stagingDir string
	backupDir  string
}

func NewProcessor(logger zerolog.Logger, managedDir, stagingDir, backupDir string) *Processor {
	return &Processor{
		logger:     logger.With().Str("component", "manifest-processor").Logger(),
		managedDir: managedDir,
		stagingDir: stagingDir,
		backupDir:  backupDir,
	}
}

// Discover lists the manifests in a source directory, ordered for
// deployment: Network, Volume, Image, Container, Config, by name within a
// kind.
func (p *Processor) Discover(sourceDir string) ([]File, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("read manifest directory %s: %w", sourceDir, err)
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !IsManifest(entry.Name()) {
			continue
		}
		files = append(files, File{
			Name: UnitName(entry.Name()),
			Path: filepath.Join(sourceDir, entry.Name()),
			Kind: Classify(entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Kind != files[j].Kind {
			return files[i].Kind < files[j].Kind
		}
		return files[i].Name < files[j].Name
	})

	p.logger.Debug().Str("dir", sourceDir).Int("count", len(files)).Msg("discovered manifests")
	return files, nil
}

// deployed tracks one copied file so a failed attempt can be compensated.
type deployed struct {
	target  string
	bakPath string // non-empty when an existing target was displaced
}

// ProcessAndDeploy substitutes and copies every manifest for an application
// into the managed directory, in deployment order, and returns the names of
// the container units it placed. APP_NAME is always available to templates.
//
// The first failure stops the attempt, removes every file this attempt
// copied, and restores any displaced originals from their .bak siblings.
func (p *Processor) ProcessAndDeploy(appName, sourceDir string, env map[string]string) ([]string, error) {
	files, err := p.Discover(sourceDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", sourceDir)
	}

	merged := make(map[string]string, len(env)+1)
	for k, v := range env {
		merged[k] = v
	}
	if _, ok := merged["APP_NAME"]; !ok {
		merged["APP_NAME"] = appName
	}

	stagingDir := filepath.Join(p.stagingDir, appName)
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	if err := os.MkdirAll(p.managedDir, 0o700); err != nil {
		return nil, fmt.Errorf("create managed directory: %w", err)
	}

	var placed []deployed
	var containers []string
	for _, file := range files {
		if err := p.deployOne(appName, file, merged, stagingDir, &placed); err != nil {
			p.logger.Error().Err(err).
				Str("app", appName).
				Str("file", file.Path).
				Msg("manifest deployment failed, rolling back this attempt")
			p.rollback(placed)
			return nil, fmt.Errorf("deploy %s %s: %w", file.Kind, file.Name, err)
		}
		if file.Kind == KindContainer {
			containers = append(containers, file.Name)
		}
	}

	p.logger.Info().
		Str("app", appName).
		Int("files", len(placed)).
		Int("containers", len(containers)).
		Msg("manifests deployed")
	return containers, nil
}

func (p *Processor) deployOne(appName string, file File, env map[string]string, stagingDir string, placed *[]deployed) error {
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	substituted, unresolved := Substitute(string(content), env)
	for _, name := range unresolved {
		p.logger.Warn().
			Str("app", appName).
			Str("file", file.Path).
			Str("variable", name).
			Msg("unresolved template variable left verbatim")
	}

	// Stage, then copy into the managed directory.
	stagedPath := filepath.Join(stagingDir, filepath.Base(file.Path))
	if err := os.WriteFile(stagedPath, []byte(substituted), 0o600); err != nil {
		return fmt.Errorf("write staged file: %w", err)
	}

	target := filepath.Join(p.managedDir, filepath.Base(file.Path))
	record := deployed{target: target}
	if _, err := os.Stat(target); err == nil {
		if err := p.backupToArchive(target); err != nil {
			p.logger.Warn().Err(err).Str("file", target).Msg("archive backup failed")
		}
		record.bakPath = target + ".bak"
		if err := os.Rename(target, record.bakPath); err != nil {
			return fmt.Errorf("preserve existing target: %w", err)
		}
	}

	if err := os.WriteFile(target, []byte(substituted), 0o600); err != nil {
		// Put the displaced original back before reporting.
		if record.bakPath != "" {
			os.Rename(record.bakPath, target)
		}
		return fmt.Errorf("write target: %w", err)
	}

	*placed = append(*placed, record)
	p.logger.Debug().
		Str("kind", file.Kind.String()).
		Str("name", file.Name).
		Str("target", target).
		Msg("manifest file deployed")
	return nil
}

// rollback removes the files one attempt copied and restores displaced
// originals, newest first.
func (p *Processor) rollback(placed []deployed) {
	for i := len(placed) - 1; i >= 0; i-- {
		rec := placed[i]
		if err := os.Remove(rec.target); err != nil && !os.IsNotExist(err) {
			p.logger.Warn().Err(err).Str("file", rec.target).Msg("rollback removal failed")
		}
		if rec.bakPath != "" {
			if err := os.Rename(rec.bakPath, rec.target); err != nil {
				p.logger.Warn().Err(err).Str("file", rec.bakPath).Msg("rollback restore failed")
			}
		}
	}
}

// backupToArchive keeps a timestamped copy of a managed file that is about
// to be overwritten.
func (p *Processor) backupToArchive(path string) error {
	if p.backupDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.backupDir, 0o700); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	stamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(p.backupDir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))

	if err := os.WriteFile(backupPath, content, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	p.logger.Debug().Str("backup", backupPath).Msg("archived displaced manifest")
	return nil
}

// DeployedUnits inventories the managed directory by kind.
func (p *Processor) DeployedUnits() (map[Kind][]string, error) {
	entries, err := os.ReadDir(p.managedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[Kind][]string{}, nil
		}
		return nil, fmt.Errorf("read managed directory: %w", err)
	}

	units := make(map[Kind][]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".bak" {
			continue
		}
		kind := Classify(entry.Name())
		units[kind] = append(units[kind], UnitName(entry.Name()))
	}
	for _, names := range units {
		sort.Strings(names)
	}
	return units, nil
}

// ManagedDir is the directory unit files are deployed into.
func (p *Processor) ManagedDir() string { return p.managedDir }
