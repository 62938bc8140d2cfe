package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"aura/internal/logging"
	"aura/internal/types"
)

// InsightKey derives the stable key of an insight from its text.
func InsightKey(insight string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(insight))))
	return hex.EncodeToString(sum[:8])
}

// UpsertInsight stores a consolidated insight. Re-deriving the same insight
// reinforces it: source_count only ever grows.
func (s *Store) UpsertInsight(category, insight string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := InsightKey(insight)
	_, err := s.db.Exec(
		`INSERT INTO semantic_knowledge (key, category, insight, source_count, last_reinforced)
		 VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET
			source_count = source_count + 1,
			last_reinforced = CURRENT_TIMESTAMP`,
		key, category, insight,
	)
	if err != nil {
		return fmt.Errorf("upsert insight: %w", err)
	}
	return nil
}

// TopInsights returns the most reinforced insights, optionally filtered by
// category.
func (s *Store) TopInsights(category string, limit int) ([]types.SemanticInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	query := `SELECT key, category, insight, source_count, last_reinforced FROM semantic_knowledge`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY source_count DESC, last_reinforced DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []types.SemanticInsight
	for rows.Next() {
		var si types.SemanticInsight
		var reinforced string
		if err := rows.Scan(&si.Key, &si.Category, &si.Insight, &si.SourceCount, &reinforced); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		si.LastReinforced = parseSQLiteTime(reinforced)
		out = append(out, si)
	}
	return out, rows.Err()
}

// defaultAnchors seed the identity core on first boot. They are mutable only
// through explicit updates, never through consolidation.
var defaultAnchors = []types.IdentityAnchor{
	{Key: "name", Value: "Aura", Category: "anchor", Significance: 1.0},
	{Key: "role", Value: "autonomous personal assistant", Category: "anchor", Significance: 1.0},
	{Key: "prime_directive", Value: "serve the user's interests; never act against them", Category: "ethics", Significance: 1.0},
	{Key: "honesty", Value: "report failures plainly; never fabricate results", Category: "ethics", Significance: 0.9},
	{Key: "curiosity", Value: "prefer learning a reusable skill over one-off effort", Category: "motivation", Significance: 0.7},
}

// SeedIdentity installs the default anchors if the table is empty.
func (s *Store) SeedIdentity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM identity_anchors`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, a := range defaultAnchors {
		if _, err := s.db.Exec(
			`INSERT INTO identity_anchors (key, value, category, significance) VALUES (?, ?, ?, ?)`,
			a.Key, a.Value, a.Category, a.Significance,
		); err != nil {
			return fmt.Errorf("seed anchor %s: %w", a.Key, err)
		}
	}
	logging.Memory("[Identity] seeded %d anchors", len(defaultAnchors))
	return nil
}

// UpdateAnchor sets an identity anchor explicitly.
func (s *Store) UpdateAnchor(key, value, category string, significance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO identity_anchors (key, value, category, significance, last_updated)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			category = excluded.category,
			significance = excluded.significance,
			last_updated = CURRENT_TIMESTAMP`,
		key, value, category, significance,
	)
	return err
}

// Anchors returns all identity anchors ordered by significance.
func (s *Store) Anchors() ([]types.IdentityAnchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT key, value, category, significance, last_updated FROM identity_anchors ORDER BY significance DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.IdentityAnchor
	for rows.Next() {
		var a types.IdentityAnchor
		var updated string
		if err := rows.Scan(&a.Key, &a.Value, &a.Category, &a.Significance, &updated); err != nil {
			return nil, err
		}
		a.LastUpdated = parseSQLiteTime(updated)
		out = append(out, a)
	}
	return out, rows.Err()
}

// IdentityBlock renders the anchors as a prompt fragment.
func (s *Store) IdentityBlock() (string, error) {
	anchors, err := s.Anchors()
	if err != nil {
		return "", err
	}
	if len(anchors) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("IDENTITY:\n")
	for _, a := range anchors {
		fmt.Fprintf(&b, "- %s: %s\n", a.Key, a.Value)
	}
	return b.String(), nil
}
