package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// BackupInfo describes one archived manifest copy.
type BackupInfo struct {
	Name     string // original unit file name, e.g. "app.container"
	Path     string
	Archived time.Time
}

var backupNameRe = regexp.MustCompile(`^(.+)_(\d{8}_\d{6})(\.[^.]+)?$`)

func parseBackupName(base string) (string, bool) {
	m := backupNameRe.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	return m[1] + m[3], true
}

// ListBackups returns all archived copies, newest first.
func (p *Processor) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(p.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := parseBackupName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat backup %s: %w", entry.Name(), err)
		}
		backups = append(backups, BackupInfo{
			Name:     name,
			Path:     filepath.Join(p.backupDir, entry.Name()),
			Archived: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Archived.After(backups[j].Archived)
	})
	return backups, nil
}

// RestoreBackup copies the newest archived version of a unit file back into
// the managed directory.
func (p *Processor) RestoreBackup(name string) error {
	backups, err := p.ListBackups()
	if err != nil {
		return err
	}

	for _, b := range backups {
		if b.Name != name {
			continue
		}
		content, err := os.ReadFile(b.Path)
		if err != nil {
			return fmt.Errorf("read backup %s: %w", b.Path, err)
		}
		target := filepath.Join(p.managedDir, name)
		if err := os.WriteFile(target, content, 0o600); err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}
		p.logger.Info().Str("file", name).Str("backup", b.Path).Msg("restored from backup")
		return nil
	}
	return fmt.Errorf("no backup found for %s", name)
}

// CleanupBackups removes old archived copies, keeping the most recent
// maxPerFile for each unit file.
func (p *Processor) CleanupBackups(maxPerFile int) error {
	backups, err := p.ListBackups()
	if err != nil {
		return err
	}

	seen := make(map[string]int)
	for _, b := range backups {
		seen[b.Name]++
		if seen[b.Name] <= maxPerFile {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("remove old backup %s: %w", b.Path, err)
		}
		p.logger.Debug().Str("backup", b.Path).Msg("removed old backup")
	}
	return nil
}
