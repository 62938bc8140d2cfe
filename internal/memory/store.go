// Package memory implements the hierarchical memory fabric: a chronological
// working trace, append-only episodic memory with vector recall, consolidated
// semantic wisdom, flat lesson storage, and identity anchors. SQLite holds
// everything except lessons, which live in a JSON sidecar.
package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database backing working, episodic, semantic and
// identity memory.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewStore initializes the SQLite database at the given path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	messagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT 'default',
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`

	episodesTable := `
	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		trigger_context TEXT,
		intent TEXT,
		plan TEXT,
		action TEXT,
		outcome TEXT,
		confidence REAL DEFAULT 0,
		embedding TEXT,
		access_count INTEGER DEFAULT 1,
		last_accessed DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at);
	`

	semanticTable := `
	CREATE TABLE IF NOT EXISTS semantic_knowledge (
		key TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		insight TEXT NOT NULL,
		source_count INTEGER DEFAULT 1,
		last_reinforced DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_semantic_category ON semantic_knowledge(category);
	`

	identityTable := `
	CREATE TABLE IF NOT EXISTS identity_anchors (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		category TEXT DEFAULT 'anchor',
		significance REAL DEFAULT 0.5,
		last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	sessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		trace_json TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, table := range []string{messagesTable, episodesTable, semanticTable, identityTable, sessionsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
