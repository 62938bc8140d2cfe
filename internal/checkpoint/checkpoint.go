// Package checkpoint snapshots the state directory before risky operations
// and restores it on demand. A checkpoint is a timestamped directory under
// backups/ holding copies of every state file.
package checkpoint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"aura/internal/logging"
)

// stateFiles are the files a checkpoint covers, relative to the state dir.
var stateFiles = []string{
	"memory.db",
	"lessons.json",
	"world.json",
	"reflexes.json",
	"evolution.json",
	"governor.json",
	"missions.json",
}

const maxCheckpoints = 10

// Manager creates and restores checkpoints.
type Manager struct {
	stateDir  string
	backupDir string
}

// NewManager prepares the backups directory.
func NewManager(stateDir string) (*Manager, error) {
	backupDir := filepath.Join(stateDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Manager{stateDir: stateDir, backupDir: backupDir}, nil
}

// Snapshot copies all present state files into a new checkpoint and prunes
// old ones. The label becomes part of the checkpoint name.
func (m *Manager) Snapshot(label string) (string, error) {
	name := time.Now().Format("20060102-150405")
	if label != "" {
		name += "-" + sanitizeLabel(label)
	}
	dir := filepath.Join(m.backupDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create checkpoint: %w", err)
	}

	copied := 0
	for _, rel := range stateFiles {
		src := filepath.Join(m.stateDir, rel)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(dir, rel)); err != nil {
			return "", fmt.Errorf("checkpoint %s: %w", rel, err)
		}
		copied++
	}

	// Dynamic skills travel with the checkpoint too.
	skillsDir := filepath.Join(m.stateDir, "skills.d")
	if entries, err := os.ReadDir(skillsDir); err == nil && len(entries) > 0 {
		dst := filepath.Join(dir, "skills.d")
		if err := os.MkdirAll(dst, 0755); err != nil {
			return "", err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
				continue
			}
			if err := copyFile(filepath.Join(skillsDir, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return "", fmt.Errorf("checkpoint skill %s: %w", e.Name(), err)
			}
			copied++
		}
	}

	if copied == 0 {
		os.RemoveAll(dir)
		return "", fmt.Errorf("nothing to checkpoint in %s", m.stateDir)
	}

	m.prune()
	logging.Checkpoint("snapshot %s (%d files)", name, copied)
	return name, nil
}

// Restore copies a checkpoint's files back over the state directory. The
// caller must have closed live stores first; restoring under an open SQLite
// handle corrupts the database.
func (m *Manager) Restore(name string) error {
	dir := filepath.Join(m.backupDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("unknown checkpoint %q", name)
	}

	restored := 0
	for _, rel := range stateFiles {
		src := filepath.Join(dir, rel)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(m.stateDir, rel)); err != nil {
			return fmt.Errorf("restore %s: %w", rel, err)
		}
		restored++
	}

	srcSkills := filepath.Join(dir, "skills.d")
	if entries, err := os.ReadDir(srcSkills); err == nil {
		dstSkills := filepath.Join(m.stateDir, "skills.d")
		if err := os.MkdirAll(dstSkills, 0755); err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := copyFile(filepath.Join(srcSkills, e.Name()), filepath.Join(dstSkills, e.Name())); err != nil {
				return fmt.Errorf("restore skill %s: %w", e.Name(), err)
			}
			restored++
		}
	}

	logging.Checkpoint("restored %s (%d files)", name, restored)
	return nil
}

// Latest returns the newest checkpoint name.
func (m *Manager) Latest() (string, bool) {
	names := m.List()
	if len(names) == 0 {
		return "", false
	}
	return names[len(names)-1], true
}

// List returns checkpoint names oldest first.
func (m *Manager) List() []string {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// prune drops the oldest checkpoints beyond the retention cap.
func (m *Manager) prune() {
	names := m.List()
	for len(names) > maxCheckpoints {
		victim := names[0]
		names = names[1:]
		if err := os.RemoveAll(filepath.Join(m.backupDir, victim)); err != nil {
			logging.CheckpointWarn("prune %s: %v", victim, err)
		}
	}
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := b.String()
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
