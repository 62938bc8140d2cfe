package world

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModelPersistenceRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	m.RegisterApp("Spotify", "spotify")
	m.SetSemanticPath("my notes", "/home/user/notes")
	m.ObserveHabit("open spotify at 9am")
	m.SetContext("current_project", "aura")
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer r.Close()

	if cmd, ok := r.ResolveApp("spotify"); !ok || cmd != "spotify" {
		t.Errorf("app not persisted: %q %v", cmd, ok)
	}
	if got := r.ResolvePath("my notes"); got != "/home/user/notes" {
		t.Errorf("semantic path not persisted: %q", got)
	}
	if v, ok := r.Context("current_project"); !ok || v != "aura" {
		t.Errorf("context not persisted: %q %v", v, ok)
	}
}

func TestResolvePathUnknownPassthrough(t *testing.T) {
	m, _ := Load(filepath.Join(t.TempDir(), "world.json"))
	defer m.Close()
	if got := m.ResolvePath("/tmp/literal"); got != "/tmp/literal" {
		t.Errorf("unknown alias should pass through, got %q", got)
	}
}

func TestObserveHabitCounts(t *testing.T) {
	m, _ := Load(filepath.Join(t.TempDir(), "world.json"))
	defer m.Close()
	for i := 1; i <= 3; i++ {
		if n := m.ObserveHabit("check email"); n != i {
			t.Errorf("habit count = %d, want %d", n, i)
		}
	}
}

func TestScanBuildsGraph(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "pkg"), 0755)
	os.MkdirAll(filepath.Join(root, ".hidden"), 0755)
	os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0644)
	os.WriteFile(filepath.Join(root, "pkg", "util.go"), []byte("package pkg"), 0644)
	os.WriteFile(filepath.Join(root, "pkg", "notes.txt"), []byte("ignore"), 0644)
	os.WriteFile(filepath.Join(root, ".hidden", "secret.go"), []byte("package hidden"), 0644)

	m, _ := Load(filepath.Join(t.TempDir(), "world.json"))
	defer m.Close()

	total, err := m.Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 source files, got %d", total)
	}
	if m.Summary() == "" {
		t.Error("summary should describe the scanned workspace")
	}
}

func TestTouchesProtectedZone(t *testing.T) {
	m, _ := Load(filepath.Join(t.TempDir(), "world.json"))
	defer m.Close()

	hits := []string{
		"Delete my entire windows system directory right now",
		"wipe C:\\Windows\\System32 please",
		"remove everything under /etc tonight",
		"clean out ~/.ssh for me",
	}
	for _, text := range hits {
		if !m.TouchesProtectedZone(text) {
			t.Errorf("%q should touch a protected zone", text)
		}
	}
	misses := []string{
		"delete the draft email",
		"organize my downloads folder",
		"what time is it",
	}
	for _, text := range misses {
		if m.TouchesProtectedZone(text) {
			t.Errorf("%q should not touch a protected zone", text)
		}
	}
}

func TestProtectedZonesPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")

	m, _ := Load(path)
	m.AddProtectedZone("family photos")
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, _ := Load(path)
	defer r.Close()
	if !r.TouchesProtectedZone("please erase the Family Photos archive") {
		t.Error("custom protected zone should survive a reload")
	}
	if !r.TouchesProtectedZone("format the windows system drive") {
		t.Error("default zones should survive alongside custom ones")
	}
}

func TestWritableRoots(t *testing.T) {
	m, _ := Load(filepath.Join(t.TempDir(), "world.json"))
	defer m.Close()

	m.AddWritableRoot("/home/user/projects")
	m.AddWritableRoot("/home/user/projects") // duplicate ignored
	roots := m.WritableRoots()
	if len(roots) != 1 || roots[0] != "/home/user/projects" {
		t.Errorf("writable roots = %v, want one blessed root", roots)
	}
}

func TestCorruptModelStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")
	os.WriteFile(path, []byte("%%%"), 0644)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("corrupt model must not fail load: %v", err)
	}
	defer m.Close()
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Error("corrupt file should be preserved aside")
	}
}
