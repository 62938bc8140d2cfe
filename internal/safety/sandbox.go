package safety

import (
	"fmt"
	"path/filepath"
	"strings"

	"aura/internal/logging"
)

// PathSandbox confines filesystem skills to declared roots. Blocked roots win
// over allowed roots, so a workspace inside a blocked tree stays blocked.
type PathSandbox struct {
	roots   []string
	blocked []string
}

// NewPathSandbox builds a sandbox from allowed and blocked roots. Roots are
// cleaned to absolute paths up front; relative roots resolve against the
// current directory once, not per check.
func NewPathSandbox(roots, blocked []string) *PathSandbox {
	abs := func(paths []string) []string {
		out := make([]string, 0, len(paths))
		for _, p := range paths {
			if p == "" {
				continue
			}
			a, err := filepath.Abs(p)
			if err != nil {
				continue
			}
			out = append(out, filepath.Clean(a))
		}
		return out
	}
	return &PathSandbox{roots: abs(roots), blocked: abs(blocked)}
}

// Check verifies a path is inside an allowed root and outside every blocked
// root. The path is canonicalized first, so "../" traversal cannot escape.
func (s *PathSandbox) Check(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	abs = filepath.Clean(abs)
	// Symlinks could point a workspace path at a blocked tree; resolve them
	// when the target exists.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	for _, b := range s.blocked {
		if within(abs, b) {
			logging.SafetyError("path %s blocked (under %s)", abs, b)
			return "", fmt.Errorf("path %s is in a protected location", abs)
		}
	}
	for _, r := range s.roots {
		if within(abs, r) {
			return abs, nil
		}
	}
	logging.SafetyWarn("path %s outside sandbox roots", abs)
	return "", fmt.Errorf("path %s is outside the allowed workspace", abs)
}

// within reports whether path is root or inside it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
