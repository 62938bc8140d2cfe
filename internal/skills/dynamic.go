package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"aura/internal/logging"
)

// allowedImports is the stdlib subset dynamic skills may use. Anything with
// process, network, or filesystem reach is excluded; skills that need those
// effects must go through built-ins behind the capability gate.
var allowedImports = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"math/rand":       true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"encoding/csv":    true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"unicode":         true,
	"errors":          true,
}

// DynamicLoader interprets skills.d files with yaegi and keeps the registry
// in sync with the directory via fsnotify.
type DynamicLoader struct {
	registry *Registry
	dir      string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewDynamicLoader creates the loader and its skills directory.
func NewDynamicLoader(registry *Registry, dir string) (*DynamicLoader, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create skills dir: %w", err)
	}
	return &DynamicLoader{
		registry: registry,
		dir:      dir,
		done:     make(chan struct{}),
	}, nil
}

// LoadAll interprets every .go file in the skills directory.
func (l *DynamicLoader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		if err := l.LoadFile(path); err != nil {
			logging.SkillsError("skipping %s: %v", e.Name(), err)
			continue
		}
		loaded++
	}
	logging.Skills("loaded %d dynamic skills from %s", loaded, l.dir)
	return nil
}

// LoadFile validates and registers one dynamic skill. The skill name is the
// file base name without extension; the file must define
// RunSkill(input string) (string, error).
func (l *DynamicLoader) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read skill: %w", err)
	}
	code := string(src)

	if err := ValidateImports(code); err != nil {
		return err
	}

	name := SkillNameForFile(path)
	description := extractDescription(code)
	if description == "" {
		description = "Dynamic skill " + name
	}

	skill := &Skill{
		Name:        name,
		Description: description,
		Capability:  "", // ungated: capability gate treats unknown as destructive
		Schema: Schema{
			Required:   []string{"input"},
			Properties: map[string]Property{"input": {Type: "string", Description: "Skill input"}},
		},
		Handler: dynamicHandler(code),
		Dynamic: true,
		Source:  path,
	}
	return l.registry.Register(skill)
}

// SkillNameForFile maps a skills.d path to its registry name.
func SkillNameForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// dynamicHandler builds a handler that interprets the code fresh per call.
// A new interpreter each time keeps executions isolated from each other.
func dynamicHandler(code string) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		input, _ := params["input"].(string)

		i := interp.New(interp.Options{})
		if err := i.Use(stdlib.Symbols); err != nil {
			return "", fmt.Errorf("interpreter setup: %w", err)
		}

		if _, err := i.Eval(wrapCode(code)); err != nil {
			return "", fmt.Errorf("skill code invalid: %w", err)
		}

		v, err := i.Eval("main.RunSkill")
		if err != nil {
			return "", fmt.Errorf("skill missing RunSkill: %w", err)
		}
		run, ok := v.Interface().(func(string) (string, error))
		if !ok {
			return "", fmt.Errorf("RunSkill must be func(string) (string, error)")
		}

		type result struct {
			out string
			err error
		}
		ch := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- result{"", fmt.Errorf("skill panicked: %v", r)}
				}
			}()
			out, err := run(input)
			ch <- result{out, err}
		}()

		select {
		case r := <-ch:
			return r.out, r.err
		case <-ctx.Done():
			return "", fmt.Errorf("skill timed out: %w", ctx.Err())
		}
	}
}

// ValidateImports rejects code importing outside the allowlist. It scans
// import lines textually before the interpreter ever sees the code.
func ValidateImports(code string) error {
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			continue
		case inBlock && trimmed == ")":
			inBlock = false
			continue
		}

		var spec string
		if inBlock {
			spec = trimmed
		} else if strings.HasPrefix(trimmed, "import ") {
			spec = strings.TrimSpace(strings.TrimPrefix(trimmed, "import"))
		} else {
			continue
		}

		start := strings.Index(spec, `"`)
		end := strings.LastIndex(spec, `"`)
		if start < 0 || end <= start {
			continue
		}
		pkg := spec[start+1 : end]
		if !allowedImports[pkg] {
			return fmt.Errorf("import %q not allowed in dynamic skills", pkg)
		}
	}
	return nil
}

// wrapCode ensures the snippet has a package clause.
func wrapCode(code string) string {
	if strings.Contains(code, "package ") {
		return code
	}
	return "package main\n\n" + code
}

// extractDescription returns the first top-of-file comment line, which is
// how synthesized skills carry their summary.
func extractDescription(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
		}
		return ""
	}
	return ""
}

// Watch starts the fsnotify loop that hot-reloads the skills directory.
func (l *DynamicLoader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("skills watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	l.watcher = w

	go l.watchLoop()
	logging.Skills("watching %s for skill changes", l.dir)
	return nil
}

func (l *DynamicLoader) watchLoop() {
	// Writes often come in bursts; a small settle delay avoids interpreting
	// half-written files.
	const settle = 200 * time.Millisecond
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".go") {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
				name := SkillNameForFile(ev.Name)
				l.registry.Unregister(name)
				logging.Skills("dynamic skill %s removed", name)
			case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
				time.Sleep(settle)
				if err := l.LoadFile(ev.Name); err != nil {
					logging.SkillsError("reload %s: %v", filepath.Base(ev.Name), err)
				} else {
					logging.Skills("dynamic skill %s reloaded", SkillNameForFile(ev.Name))
				}
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logging.SkillsWarn("watcher error: %v", err)
		case <-l.done:
			return
		}
	}
}

// Close stops the watcher.
func (l *DynamicLoader) Close() error {
	close(l.done)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
