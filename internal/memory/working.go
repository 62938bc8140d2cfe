package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"aura/internal/logging"
	"aura/internal/types"
)

// AddMessage appends one turn to the working-memory trace.
func (s *Store) AddMessage(role, content, sessionID, metadata string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		sessionID = "default"
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (role, content, session_id, metadata) VALUES (?, ?, ?, ?)`,
		role, content, sessionID, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentTrace returns the last n messages of a session in chronological
// order.
func (s *Store) RecentTrace(sessionID string, n int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sessionID == "" {
		sessionID = "default"
	}
	if n <= 0 {
		n = 15
	}
	rows, err := s.db.Query(
		`SELECT id, role, content, session_id, COALESCE(metadata, ''), created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	var reversed []types.Message
	for rows.Next() {
		var m types.Message
		var ts string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.SessionID, &m.Metadata, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = parseSQLiteTime(ts)
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]types.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

// ClearSession removes the working trace of a session.
func (s *Store) ClearSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		sessionID = "default"
	}
	_, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID)
	return err
}

// SaveSession snapshots the current working trace under a name (the /save
// command). Saving over an existing name replaces it.
func (s *Store) SaveSession(name, sessionID string, limit int) error {
	trace, err := s.RecentTrace(sessionID, limit)
	if err != nil {
		return err
	}
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO sessions (name, trace_json, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET trace_json = excluded.trace_json, saved_at = excluded.saved_at`,
		name, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", name, err)
	}
	logging.Memory("[Session] saved %q (%d turns)", name, len(trace))
	return nil
}

// LoadSession restores a named snapshot into the live working trace,
// replacing the current session contents (the /load command).
func (s *Store) LoadSession(name, sessionID string) (int, error) {
	s.mu.Lock()
	var data string
	err := s.db.QueryRow(`SELECT trace_json FROM sessions WHERE name = ?`, name).Scan(&data)
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("session %q not found: %w", name, err)
	}

	var trace []types.Message
	if err := json.Unmarshal([]byte(data), &trace); err != nil {
		return 0, fmt.Errorf("corrupt session %q: %w", name, err)
	}

	if err := s.ClearSession(sessionID); err != nil {
		return 0, err
	}
	for _, m := range trace {
		if err := s.AddMessage(m.Role, m.Content, sessionID, m.Metadata); err != nil {
			return 0, err
		}
	}
	logging.Memory("[Session] loaded %q (%d turns)", name, len(trace))
	return len(trace), nil
}

// ListSessions returns saved snapshot names, most recent first.
func (s *Store) ListSessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT name FROM sessions ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// parseSQLiteTime handles both DATETIME default format and RFC3339.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
