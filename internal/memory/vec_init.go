//go:build sqlite_vec && cgo

package memory

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Auto-load sqlite-vec into every mattn/go-sqlite3 connection. Builds
	// tagged sqlite_vec get native vector search; the default build falls
	// back to the in-process cosine scan in episodic.go.
	vec.Auto()
}
