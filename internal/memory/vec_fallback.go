//go:build !sqlite_vec || !cgo

package memory

// openEpisodeIndex is a no-op without the sqlite_vec build tag; episodic
// recall uses the in-process cosine scan in episodic.go.
func openEpisodeIndex(string, int) episodeIndex { return nil }
