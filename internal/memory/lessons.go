package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aura/internal/embedding"
	"aura/internal/logging"
	"aura/internal/persist"
	"aura/internal/types"
)

// relationshipThreshold is the cosine similarity at which two lessons are
// linked when one is inserted.
const relationshipThreshold = 0.75

// LessonStore holds flat searchable lessons in a JSON sidecar. The on-disk
// layout is five parallel arrays keyed by index: lesson texts, embeddings,
// metadata, relationship links, and failure flags. Add keeps them in lockstep.
type LessonStore struct {
	mu   sync.RWMutex
	path string

	texts         []string
	embeddings    [][]float32
	metadata      []types.LessonMetadata
	relationships [][]int // indices of linked lessons
	failures      []bool  // true when the lesson records something going wrong

	debounce *persist.Debouncer
}

// lessonsFile is the JSON layout on disk.
type lessonsFile struct {
	Lessons       []string               `json:"lessons"`
	Embeddings    [][]float32            `json:"embeddings"`
	Metadata      []types.LessonMetadata `json:"metadata"`
	Relationships [][]int                `json:"relationships"`
	Failures      []bool                 `json:"failures"`
}

// NewLessonStore loads lessons from path, starting empty if the file does not
// exist. Corrupt files are renamed aside rather than silently overwritten.
func NewLessonStore(path string) (*LessonStore, error) {
	ls := &LessonStore{path: path}
	ls.debounce = persist.New(ls.save, 3*time.Second, 15*time.Second)
	ls.debounce.OnError(func(err error) {
		logging.MemoryError("[Lessons] debounced save failed: %v", err)
	})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ls, nil
		}
		return nil, fmt.Errorf("read lessons %s: %w", path, err)
	}

	var f lessonsFile
	if err := json.Unmarshal(data, &f); err != nil || !conform(&f) {
		aside := path + ".corrupt"
		os.Rename(path, aside)
		logging.MemoryError("[Lessons] corrupt file moved to %s, starting fresh", aside)
		return ls, nil
	}
	ls.texts = f.Lessons
	ls.embeddings = f.Embeddings
	ls.metadata = f.Metadata
	ls.relationships = f.Relationships
	ls.failures = f.Failures
	logging.Memory("[Lessons] loaded %d lessons", len(ls.texts))
	return ls, nil
}

// conform verifies the core arrays line up and backfills relationships and
// failures when a file predating them is loaded.
func conform(f *lessonsFile) bool {
	n := len(f.Lessons)
	if len(f.Embeddings) != n || len(f.Metadata) != n {
		return false
	}
	if len(f.Relationships) != n {
		f.Relationships = make([][]int, n)
	}
	if len(f.Failures) != n {
		f.Failures = make([]bool, n)
	}
	return true
}

// Add records a lesson. An exact-text duplicate reinforces the existing entry
// instead of appending. Returns true when a new lesson was created.
func (ls *LessonStore) Add(ctx context.Context, embedder embedding.Engine, text, author, sourceTask string, reliability float64) (bool, error) {
	return ls.add(ctx, embedder, text, author, sourceTask, reliability, false)
}

// AddFailure records a lesson describing something that went wrong. Failure
// lessons feed the past-failure signal when later requests are triaged.
func (ls *LessonStore) AddFailure(ctx context.Context, embedder embedding.Engine, text, author, sourceTask string, reliability float64) (bool, error) {
	return ls.add(ctx, embedder, text, author, sourceTask, reliability, true)
}

func (ls *LessonStore) add(ctx context.Context, embedder embedding.Engine, text, author, sourceTask string, reliability float64, failure bool) (bool, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	now := time.Now().UTC()
	for i, existing := range ls.texts {
		if existing == text {
			ls.metadata[i].Count++
			ls.metadata[i].LastAccessed = now
			if reliability > ls.metadata[i].Reliability {
				ls.metadata[i].Reliability = reliability
			}
			if failure {
				ls.failures[i] = true
			}
			ls.debounce.MarkDirty()
			return false, nil
		}
	}

	var vec []float32
	if embedder != nil {
		v, err := embedder.Embed(ctx, text)
		if err != nil {
			logging.MemoryWarn("[Lessons] embed failed, storing without vector: %v", err)
		} else {
			vec = v
		}
	}

	idx := len(ls.texts)
	related := ls.relatedLocked(vec, sourceTask)
	ls.texts = append(ls.texts, text)
	ls.embeddings = append(ls.embeddings, vec)
	ls.metadata = append(ls.metadata, types.LessonMetadata{
		CreatedAt:    now,
		LastAccessed: now,
		Author:       author,
		SourceTask:   sourceTask,
		Count:        1,
		Reliability:  reliability,
	})
	ls.relationships = append(ls.relationships, related)
	ls.failures = append(ls.failures, failure)
	for _, r := range related {
		ls.relationships[r] = append(ls.relationships[r], idx)
	}
	ls.debounce.MarkDirty()
	return true, nil
}

// relatedLocked finds lessons the new one should link to: vector neighbors
// above the threshold, plus lessons born from the same source task. The task
// path is what connects a failure lesson to the strategy lesson of the same
// request, with or without vectors.
func (ls *LessonStore) relatedLocked(vec []float32, sourceTask string) []int {
	var related []int
	seen := map[int]bool{}
	if len(vec) > 0 {
		for i, other := range ls.embeddings {
			if len(other) == 0 {
				continue
			}
			if sim, err := embedding.CosineSimilarity(vec, other); err == nil && sim >= relationshipThreshold {
				related = append(related, i)
				seen[i] = true
			}
		}
	}
	if sourceTask != "" {
		for i, m := range ls.metadata {
			if m.SourceTask == sourceTask && !seen[i] {
				related = append(related, i)
			}
		}
	}
	return related
}

// Search returns up to k lessons for the query: vector neighbors first, then
// lessons linked to those hits when slots remain. Lessons without vectors are
// reachable only through links.
func (ls *LessonStore) Search(ctx context.Context, embedder embedding.Engine, query string, k int) ([]types.Lesson, error) {
	if embedder == nil {
		return ls.recent(k), nil
	}
	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return ls.recent(k), nil
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	var indices []int
	var corpus [][]float32
	for i, vec := range ls.embeddings {
		if len(vec) > 0 {
			indices = append(indices, i)
			corpus = append(corpus, vec)
		}
	}
	results, err := embedding.FindTopK(queryVec, corpus, k)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	hit := make([]int, 0, len(results))
	seen := map[int]bool{}
	out := make([]types.Lesson, 0, len(results))
	for _, r := range results {
		idx := indices[r.Index]
		hit = append(hit, idx)
		seen[idx] = true
		ls.metadata[idx].LastAccessed = now
		l := ls.lessonLocked(idx)
		l.Similarity = r.Similarity
		out = append(out, l)
	}

	// Associative step: linked lessons of the hits fill unused slots.
	for _, idx := range hit {
		for _, rel := range ls.relationships[idx] {
			if len(out) >= k {
				break
			}
			if rel < 0 || rel >= len(ls.texts) || seen[rel] {
				continue
			}
			seen[rel] = true
			ls.metadata[rel].LastAccessed = now
			out = append(out, ls.lessonLocked(rel))
		}
	}

	if len(out) > 0 {
		ls.debounce.MarkDirty()
	}
	return out, nil
}

// lessonLocked materializes the parallel-array entry at i.
func (ls *LessonStore) lessonLocked(i int) types.Lesson {
	return types.Lesson{
		Text:      ls.texts[i],
		Embedding: ls.embeddings[i],
		Metadata:  ls.metadata[i],
		Failure:   ls.failures[i],
	}
}

// recent returns the newest k lessons without semantic ranking.
func (ls *LessonStore) recent(k int) []types.Lesson {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	start := len(ls.texts) - k
	if start < 0 {
		start = 0
	}
	var out []types.Lesson
	for i := len(ls.texts) - 1; i >= start; i-- {
		out = append(out, ls.lessonLocked(i))
	}
	return out
}

// Len returns the number of stored lessons.
func (ls *LessonStore) Len() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.texts)
}

// Flush forces a pending save to disk.
func (ls *LessonStore) Flush() error {
	return ls.debounce.Flush()
}

// Close stops the debouncer after a final flush.
func (ls *LessonStore) Close() error {
	err := ls.debounce.Flush()
	ls.debounce.Stop()
	return err
}

// save writes the lessons file atomically (temp file then rename).
func (ls *LessonStore) save() error {
	ls.mu.RLock()
	f := lessonsFile{
		Lessons:       ls.texts,
		Embeddings:    ls.embeddings,
		Metadata:      ls.metadata,
		Relationships: ls.relationships,
		Failures:      ls.failures,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	ls.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal lessons: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(ls.path), 0755); err != nil {
		return err
	}
	tmp := ls.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write lessons: %w", err)
	}
	return os.Rename(tmp, ls.path)
}
