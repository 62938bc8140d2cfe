package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func seedState(t *testing.T, dir string) {
	t.Helper()
	os.WriteFile(filepath.Join(dir, "world.json"), []byte(`{"apps":{}}`), 0644)
	os.WriteFile(filepath.Join(dir, "lessons.json"), []byte(`{"lessons":[]}`), 0644)
	os.MkdirAll(filepath.Join(dir, "skills.d"), 0755)
	os.WriteFile(filepath.Join(dir, "skills.d", "echo.go"), []byte("package main\n"), 0644)
}

func TestSnapshotAndRestore(t *testing.T) {
	dir := t.TempDir()
	seedState(t, dir)

	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	name, err := m.Snapshot("before forge")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// Damage the live state.
	os.WriteFile(filepath.Join(dir, "world.json"), []byte("broken"), 0644)
	os.Remove(filepath.Join(dir, "skills.d", "echo.go"))

	if err := m.Restore(name); err != nil {
		t.Fatalf("restore: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "world.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"apps":{}}` {
		t.Errorf("world.json not restored: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "skills.d", "echo.go")); err != nil {
		t.Error("dynamic skill not restored")
	}
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Restore("20990101-000000"); err == nil {
		t.Error("unknown checkpoint should error")
	}
}

func TestSnapshotEmptyStateFails(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Snapshot(""); err == nil {
		t.Error("empty state dir should not snapshot")
	}
}

func TestLabelSanitized(t *testing.T) {
	if got := sanitizeLabel("Before Forge! (risky)"); got != "before-forge-risky" {
		t.Errorf("label = %q", got)
	}
}

func TestLatestAndPruneOrdering(t *testing.T) {
	dir := t.TempDir()
	seedState(t, dir)
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	first, err := m.Snapshot("a")
	if err != nil {
		t.Fatal(err)
	}
	// Names are timestamped to the second; force distinct names.
	os.Rename(filepath.Join(dir, "backups", first), filepath.Join(dir, "backups", "20200101-000000-a"))

	second, err := m.Snapshot("b")
	if err != nil {
		t.Fatal(err)
	}

	latest, ok := m.Latest()
	if !ok || latest != second {
		t.Errorf("latest = %q, want %q", latest, second)
	}
	if len(m.List()) != 2 {
		t.Errorf("list = %v", m.List())
	}
}
