package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aura/internal/embedding"
	"aura/internal/logging"
	"aura/internal/types"
)

// AddEpisode appends one interaction record. Episodic memory is append-only;
// the embedding is computed by the caller so failed embedders degrade to
// keyword-free storage instead of blocking writes.
func (s *Store) AddEpisode(ep types.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.AccessCount < 1 {
		ep.AccessCount = 1
	}
	embJSON := ""
	if len(ep.Embedding) > 0 {
		data, err := json.Marshal(ep.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embJSON = string(data)
	}

	_, err := s.db.Exec(
		`INSERT INTO episodes (id, trigger_context, intent, plan, action, outcome, confidence, embedding, access_count, last_accessed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		ep.ID, ep.TriggerContext, ep.Intent, ep.Plan, ep.Action, ep.Outcome, ep.Confidence, embJSON, ep.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// EpisodeCount returns the total number of stored episodes.
func (s *Store) EpisodeCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&n)
	return n, err
}

// RecentEpisodes returns the newest n episodes.
func (s *Store) RecentEpisodes(n int) ([]types.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.Query(
		`SELECT id, trigger_context, intent, plan, action, outcome, confidence, COALESCE(embedding, ''), access_count, last_accessed, created_at
		 FROM episodes ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// RecallSimilar retrieves the top-k most similar episodes to the query text
// and reinforces their access counts. With no embedder the newest episodes
// are returned instead.
func (s *Store) RecallSimilar(ctx context.Context, embedder embedding.Engine, query string, k int) ([]types.Episode, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "RecallSimilar")
	defer timer.Stop()

	if embedder == nil {
		return s.RecentEpisodes(k)
	}
	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		logging.MemoryWarn("[Episodic] embed failed, falling back to recency: %v", err)
		return s.RecentEpisodes(k)
	}

	all, err := s.episodesWithEmbeddings()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	corpus := make([][]float32, len(all))
	for i, ep := range all {
		corpus[i] = ep.Embedding
	}
	results, err := embedding.FindTopK(queryVec, corpus, k)
	if err != nil {
		return nil, err
	}

	out := make([]types.Episode, 0, len(results))
	for _, r := range results {
		ep := all[r.Index]
		ep.Similarity = r.Similarity
		out = append(out, ep)
	}
	s.reinforce(out)
	return out, nil
}

// EpisodesByIDs loads episodes by ID, preserving the given order. The native
// vector index recall path lands here, so retrieval reinforces access counts
// the same way the cosine scan does.
func (s *Store) EpisodesByIDs(ids []string) ([]types.Episode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	eps, err := s.episodesByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]types.Episode, len(eps))
	for _, ep := range eps {
		byID[ep.ID] = ep
	}
	out := make([]types.Episode, 0, len(ids))
	for _, id := range ids {
		if ep, ok := byID[id]; ok {
			out = append(out, ep)
		}
	}
	s.reinforce(out)
	return out, nil
}

func (s *Store) episodesByIDs(ids []string) ([]types.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT id, trigger_context, intent, plan, action, outcome, confidence, COALESCE(embedding, ''), access_count, last_accessed, created_at
		 FROM episodes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// reinforce bumps access counts on retrieved episodes. Retrieval is what
// keeps an episode alive through decay.
func (s *Store) reinforce(eps []types.Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range eps {
		if _, err := s.db.Exec(
			`UPDATE episodes SET access_count = access_count + 1, last_accessed = CURRENT_TIMESTAMP WHERE id = ?`,
			ep.ID,
		); err != nil {
			logging.MemoryWarn("[Episodic] reinforce %s failed: %v", ep.ID, err)
		}
	}
}

// episodesWithEmbeddings loads every episode that carries a vector.
func (s *Store) episodesWithEmbeddings() ([]types.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT id, trigger_context, intent, plan, action, outcome, confidence, embedding, access_count, last_accessed, created_at
		 FROM episodes WHERE embedding IS NOT NULL AND embedding != ''`)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// DecayPrune deletes episodes older than retentionDays that were accessed
// fewer than minAccess times. Frequently recalled episodes survive
// indefinitely. Returns the number pruned.
func (s *Store) DecayPrune(retentionDays, minAccess int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retentionDays <= 0 {
		retentionDays = 30
	}
	if minAccess <= 0 {
		minAccess = 3
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC().Format("2006-01-02 15:04:05")
	res, err := s.db.Exec(
		`DELETE FROM episodes WHERE last_accessed < ? AND access_count < ?`,
		cutoff, minAccess,
	)
	if err != nil {
		return 0, fmt.Errorf("decay prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Memory("[Episodic] decay pruned %d stale episodes", n)
	}
	return int(n), nil
}

type episodeRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEpisodes(rows episodeRows) ([]types.Episode, error) {
	var out []types.Episode
	for rows.Next() {
		var ep types.Episode
		var embJSON, lastAccessed, created string
		if err := rows.Scan(&ep.ID, &ep.TriggerContext, &ep.Intent, &ep.Plan, &ep.Action, &ep.Outcome,
			&ep.Confidence, &embJSON, &ep.AccessCount, &lastAccessed, &created); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if embJSON != "" {
			if err := json.Unmarshal([]byte(embJSON), &ep.Embedding); err != nil {
				// Corrupt vector; keep the episode, lose the recall path.
				ep.Embedding = nil
			}
		}
		ep.LastAccessed = parseSQLiteTime(lastAccessed)
		ep.Timestamp = parseSQLiteTime(created)
		out = append(out, ep)
	}
	return out, rows.Err()
}
