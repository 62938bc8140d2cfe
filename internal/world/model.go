// Package world maintains the assistant's model of its environment: known
// applications, semantic path aliases, safety zones, observed user habits and
// the active context. The model persists as JSON under the state directory
// and saves through the shared debouncer.
package world

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"aura/internal/logging"
	"aura/internal/persist"
)

// Model is the persistent world state.
type Model struct {
	mu   sync.RWMutex
	path string

	Apps           map[string]string `json:"apps"`            // friendly name -> launch command
	SafetyZones    []string          `json:"safety_zones"`    // writable roots
	ProtectedZones []string          `json:"protected_zones"` // paths and phrases never to target
	SemanticPaths  map[string]string `json:"semantic_paths"`  // "my notes" -> absolute path
	UserHabits     map[string]int    `json:"user_habits"`     // observed action -> count
	CodebaseGraph  map[string]int    `json:"codebase_graph"`  // dir -> source file count
	ActiveContext  map[string]string `json:"active_context"`  // volatile facts worth persisting

	debounce *persist.Debouncer
}

// modelFile is the serialized layout; the mutex and debouncer stay out of it.
type modelFile struct {
	Apps           map[string]string `json:"apps"`
	SafetyZones    []string          `json:"safety_zones"`
	ProtectedZones []string          `json:"protected_zones"`
	SemanticPaths  map[string]string `json:"semantic_paths"`
	UserHabits     map[string]int    `json:"user_habits"`
	CodebaseGraph  map[string]int    `json:"codebase_graph"`
	ActiveContext  map[string]string `json:"active_context"`
}

// Load reads the world model from path, creating an empty model if missing.
func Load(path string) (*Model, error) {
	m := &Model{
		path:           path,
		Apps:           map[string]string{},
		ProtectedZones: defaultProtectedZones(),
		SemanticPaths:  map[string]string{},
		UserHabits:     map[string]int{},
		CodebaseGraph:  map[string]int{},
		ActiveContext:  map[string]string{},
	}
	m.debounce = persist.New(m.save, 3*time.Second, 15*time.Second)
	m.debounce.OnError(func(err error) {
		logging.WorldError("debounced save failed: %v", err)
	})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read world model %s: %w", path, err)
	}
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		aside := path + ".corrupt"
		os.Rename(path, aside)
		logging.WorldError("corrupt world model moved to %s, starting fresh", aside)
		return m, nil
	}
	if f.Apps != nil {
		m.Apps = f.Apps
	}
	m.SafetyZones = f.SafetyZones
	if len(f.ProtectedZones) > 0 {
		m.ProtectedZones = f.ProtectedZones
	}
	if f.SemanticPaths != nil {
		m.SemanticPaths = f.SemanticPaths
	}
	if f.UserHabits != nil {
		m.UserHabits = f.UserHabits
	}
	if f.CodebaseGraph != nil {
		m.CodebaseGraph = f.CodebaseGraph
	}
	if f.ActiveContext != nil {
		m.ActiveContext = f.ActiveContext
	}
	return m, nil
}

// defaultProtectedZones seeds the never-touch list on first run. Users can
// extend it; clearing it entirely requires editing the state file by hand.
func defaultProtectedZones() []string {
	return []string{
		"system32",
		"system directory",
		"windows system",
		"program files",
		"boot record",
		"registry hive",
		"/etc",
		"/boot",
		"/usr/bin",
		".ssh",
		".aws",
		".gnupg",
	}
}

// ResolveApp maps a friendly application name to its launch command.
func (m *Model) ResolveApp(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cmd, ok := m.Apps[strings.ToLower(strings.TrimSpace(name))]
	return cmd, ok
}

// RegisterApp records an application the assistant learned to launch.
func (m *Model) RegisterApp(name, command string) {
	m.mu.Lock()
	m.Apps[strings.ToLower(strings.TrimSpace(name))] = command
	m.mu.Unlock()
	m.debounce.MarkDirty()
}

// ResolvePath expands a semantic path alias ("my notes") to a real path.
// Unknown aliases return the input unchanged.
func (m *Model) ResolvePath(alias string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.SemanticPaths[strings.ToLower(strings.TrimSpace(alias))]; ok {
		return p
	}
	return alias
}

// SetSemanticPath records a path alias.
func (m *Model) SetSemanticPath(alias, path string) {
	m.mu.Lock()
	m.SemanticPaths[strings.ToLower(strings.TrimSpace(alias))] = path
	m.mu.Unlock()
	m.debounce.MarkDirty()
}

// TouchesProtectedZone reports whether the text mentions any protected zone.
// Matching is a lowercase substring scan; the judgment layer treats a hit as
// a strong risk signal rather than an outright veto.
func (m *Model) TouchesProtectedZone(text string) bool {
	lower := strings.ToLower(text)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, zone := range m.ProtectedZones {
		if zone != "" && strings.Contains(lower, strings.ToLower(zone)) {
			return true
		}
	}
	return false
}

// AddProtectedZone records a path or phrase the assistant must never target.
func (m *Model) AddProtectedZone(zone string) {
	zone = strings.ToLower(strings.TrimSpace(zone))
	if zone == "" {
		return
	}
	m.mu.Lock()
	for _, z := range m.ProtectedZones {
		if z == zone {
			m.mu.Unlock()
			return
		}
	}
	m.ProtectedZones = append(m.ProtectedZones, zone)
	m.mu.Unlock()
	m.debounce.MarkDirty()
}

// WritableRoots returns the learned safety zones: directories the user has
// blessed for writes beyond the configured workspace roots.
func (m *Model) WritableRoots() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.SafetyZones))
	copy(out, m.SafetyZones)
	return out
}

// AddWritableRoot blesses a directory for filesystem writes.
func (m *Model) AddWritableRoot(root string) {
	root = strings.TrimSpace(root)
	if root == "" {
		return
	}
	m.mu.Lock()
	for _, z := range m.SafetyZones {
		if z == root {
			m.mu.Unlock()
			return
		}
	}
	m.SafetyZones = append(m.SafetyZones, root)
	m.mu.Unlock()
	m.debounce.MarkDirty()
}

// ObserveHabit counts an observed user action; repeated habits feed the
// evolution engine's pattern mining.
func (m *Model) ObserveHabit(action string) int {
	m.mu.Lock()
	m.UserHabits[action]++
	n := m.UserHabits[action]
	m.mu.Unlock()
	m.debounce.MarkDirty()
	return n
}

// SetContext stores a volatile fact ("current_project", "last_url").
func (m *Model) SetContext(key, value string) {
	m.mu.Lock()
	m.ActiveContext[key] = value
	m.mu.Unlock()
	m.debounce.MarkDirty()
}

// Context returns a context value.
func (m *Model) Context(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.ActiveContext[key]
	return v, ok
}

// Scan walks the workspace and rebuilds the codebase graph: per-directory
// counts of source files. Hidden directories and the state dir are skipped.
func (m *Model) Scan(root string) (int, error) {
	timer := logging.StartTimer(logging.CategoryWorld, "Scan")
	defer timer.Stop()

	graph := map[string]int{}
	total := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not fatal
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".go", ".py", ".js", ".ts", ".rs", ".java", ".c", ".cpp", ".h", ".md", ".yaml", ".yml", ".json", ".sh":
			rel, _ := filepath.Rel(root, filepath.Dir(path))
			graph[rel]++
			total++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", root, err)
	}

	m.mu.Lock()
	m.CodebaseGraph = graph
	m.mu.Unlock()
	m.debounce.MarkDirty()
	logging.World("scan complete: %d source files in %d directories", total, len(graph))
	return total, nil
}

// Summary renders a compact world description for prompts.
func (m *Model) Summary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	if len(m.Apps) > 0 {
		apps := make([]string, 0, len(m.Apps))
		for name := range m.Apps {
			apps = append(apps, name)
		}
		sort.Strings(apps)
		fmt.Fprintf(&b, "Known apps: %s\n", strings.Join(apps, ", "))
	}
	if len(m.SemanticPaths) > 0 {
		fmt.Fprintf(&b, "Known places: %d path aliases\n", len(m.SemanticPaths))
	}
	if len(m.CodebaseGraph) > 0 {
		files := 0
		for _, n := range m.CodebaseGraph {
			files += n
		}
		fmt.Fprintf(&b, "Workspace: %d source files across %d directories\n", files, len(m.CodebaseGraph))
	}
	for k, v := range m.ActiveContext {
		fmt.Fprintf(&b, "Context %s: %s\n", k, v)
	}
	return b.String()
}

// Flush forces a pending save.
func (m *Model) Flush() error {
	return m.debounce.Flush()
}

// Close flushes and stops the debouncer.
func (m *Model) Close() error {
	err := m.debounce.Flush()
	m.debounce.Stop()
	return err
}

// save writes the model atomically.
func (m *Model) save() error {
	m.mu.RLock()
	f := modelFile{
		Apps:           m.Apps,
		SafetyZones:    m.SafetyZones,
		ProtectedZones: m.ProtectedZones,
		SemanticPaths:  m.SemanticPaths,
		UserHabits:     m.UserHabits,
		CodebaseGraph:  m.CodebaseGraph,
		ActiveContext:  m.ActiveContext,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
