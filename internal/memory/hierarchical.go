package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"aura/internal/config"
	"aura/internal/embedding"
	"aura/internal/logging"
	"aura/internal/types"
)

// lessonConfidenceFloor is the confidence above which an interaction also
// produces a lesson.
const lessonConfidenceFloor = 0.8

// episodeIndex is the optional native vector index over episodes. Builds
// tagged sqlite_vec back it with sqlite-vec; the default build has none and
// recall uses the in-process cosine scan.
type episodeIndex interface {
	Upsert(episodeID string, vec []float32) error
	Nearest(query []float32, k int) ([]string, error)
	Close() error
}

// Hierarchical composes the memory layers behind one facade. The controller
// talks only to this type.
type Hierarchical struct {
	store    *Store
	lessons  *LessonStore
	embedder embedding.Engine
	llm      types.LLMClient
	vec      episodeIndex

	workingSize      int
	topK             int
	retentionDays    int
	consolidateEvery int

	sinceConsolidation atomic.Int64
	dreaming           atomic.Bool
}

// NewHierarchical wires the memory fabric from configuration. The LLM client
// is only used during dream consolidation and may be nil (consolidation then
// degrades to counting-based insights).
func NewHierarchical(cfg config.MemoryConfig, embedder embedding.Engine, llm types.LLMClient) (*Hierarchical, error) {
	store, err := NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.SeedIdentity(); err != nil {
		store.Close()
		return nil, err
	}
	lessons, err := NewLessonStore(cfg.LessonsPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	h := &Hierarchical{
		store:            store,
		lessons:          lessons,
		embedder:         embedder,
		llm:              llm,
		workingSize:      cfg.WorkingMemorySize,
		topK:             cfg.TopK,
		retentionDays:    cfg.RetentionDays,
		consolidateEvery: cfg.ConsolidateEvery,
	}
	if h.workingSize <= 0 {
		h.workingSize = 15
	}
	if h.topK <= 0 {
		h.topK = 5
	}
	if h.consolidateEvery <= 0 {
		h.consolidateEvery = 20
	}
	if embedder != nil {
		h.vec = openEpisodeIndex(filepath.Join(filepath.Dir(cfg.DatabasePath), "episodes.vec.db"), embedder.Dimensions())
	}
	return h, nil
}

// Store exposes the underlying SQLite store for session and identity
// operations.
func (h *Hierarchical) Store() *Store {
	return h.store
}

// Lessons exposes the lesson store.
func (h *Hierarchical) Lessons() *LessonStore {
	return h.lessons
}

// AddMessage appends a working-memory turn.
func (h *Hierarchical) AddMessage(role, content, sessionID string) error {
	return h.store.AddMessage(role, content, sessionID, "")
}

// AddLesson records a lesson directly, outside the normal interaction flow.
func (h *Hierarchical) AddLesson(ctx context.Context, text, author, sourceTask string, reliability float64) error {
	_, err := h.lessons.Add(ctx, h.embedder, text, author, sourceTask, reliability)
	return err
}

// AddFailureLesson records a lesson about something that went wrong, flagged
// so later triage treats resemblance to it as a past-failure signal.
func (h *Hierarchical) AddFailureLesson(ctx context.Context, text, author, sourceTask string, reliability float64) error {
	_, err := h.lessons.AddFailure(ctx, h.embedder, text, author, sourceTask, reliability)
	return err
}

// GetFullContext assembles the composite memory view for prompt construction.
// Partial failures degrade the context instead of failing the request.
func (h *Hierarchical) GetFullContext(ctx context.Context, sessionID, query string) types.MemoryContext {
	timer := logging.StartTimer(logging.CategoryMemory, "GetFullContext")
	defer timer.Stop()

	var mc types.MemoryContext

	if trace, err := h.store.RecentTrace(sessionID, h.workingSize); err == nil {
		mc.WorkingTrace = trace
	} else {
		logging.MemoryWarn("[Context] working trace unavailable: %v", err)
	}
	if eps, err := h.recallEpisodes(ctx, query); err == nil {
		mc.Episodes = eps
	} else {
		logging.MemoryWarn("[Context] episodic recall unavailable: %v", err)
	}
	if lessons, err := h.lessons.Search(ctx, h.embedder, query, h.topK); err == nil {
		mc.Lessons = lessons
	}
	if wisdom, err := h.store.TopInsights("", h.topK); err == nil {
		mc.Wisdom = wisdom
	}
	if block, err := h.store.IdentityBlock(); err == nil {
		mc.IdentityBlock = block
	}
	return mc
}

// recallEpisodes prefers the native vector index when one is open and falls
// back to the in-process cosine scan, including when the index has not been
// populated yet.
func (h *Hierarchical) recallEpisodes(ctx context.Context, query string) ([]types.Episode, error) {
	if h.vec != nil && h.embedder != nil {
		if qv, err := h.embedder.Embed(ctx, query); err == nil {
			if ids, err := h.vec.Nearest(qv, h.topK); err == nil && len(ids) > 0 {
				return h.store.EpisodesByIDs(ids)
			}
		}
	}
	return h.store.RecallSimilar(ctx, h.embedder, query, h.topK)
}

// EthicalWisdom renders consolidated insights as bullet lines for the
// governor's veto prompt, preferring the ethics category. Empty until the
// first dream cycle has distilled something.
func (h *Hierarchical) EthicalWisdom() string {
	insights, err := h.store.TopInsights("ethics", 3)
	if err != nil || len(insights) == 0 {
		insights, err = h.store.TopInsights("", 3)
		if err != nil {
			return ""
		}
	}
	var b strings.Builder
	for _, in := range insights {
		b.WriteString("- ")
		b.WriteString(in.Insight)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RecordInteraction writes one completed interaction back into memory: the
// working trace, an episode, a lesson when confidence is high, and a dream
// cycle every consolidateEvery episodes.
func (h *Hierarchical) RecordInteraction(ctx context.Context, sessionID, userText string, resp *types.Response, outcome string) error {
	if err := h.store.AddMessage("user", userText, sessionID, ""); err != nil {
		return err
	}
	if err := h.store.AddMessage("assistant", resp.FinalResponse, sessionID, ""); err != nil {
		return err
	}

	ep := types.Episode{
		ID:             uuid.NewString(),
		TriggerContext: userText,
		Intent:         resp.FinalThought.IntentSummary,
		Plan:           resp.FinalThought.PrimaryStrategy,
		Outcome:        outcome,
		Confidence:     resp.FinalThought.Confidence,
	}
	if resp.Action != nil {
		ep.Action = resp.Action.Skill
	}
	if h.embedder != nil {
		if vec, err := h.embedder.Embed(ctx, userText+" "+ep.Intent); err == nil {
			ep.Embedding = vec
		}
	}
	if err := h.store.AddEpisode(ep); err != nil {
		return fmt.Errorf("record episode: %w", err)
	}
	if h.vec != nil && len(ep.Embedding) > 0 {
		if err := h.vec.Upsert(ep.ID, ep.Embedding); err != nil {
			logging.MemoryWarn("[Record] vector index write failed: %v", err)
		}
	}

	if resp.FinalThought.Confidence > lessonConfidenceFloor && ep.Intent != "" {
		lesson := fmt.Sprintf("When the user asks about %q, the strategy %q works (outcome: %s)",
			ep.Intent, ep.Plan, truncate(outcome, 120))
		if _, err := h.lessons.Add(ctx, h.embedder, lesson, "aura", userText, resp.FinalThought.Confidence); err != nil {
			logging.MemoryWarn("[Record] lesson write failed: %v", err)
		}
	}

	if h.sinceConsolidation.Add(1) >= int64(h.consolidateEvery) {
		h.sinceConsolidation.Store(0)
		go func() {
			// Consolidation runs off the request path; a fresh context keeps
			// it alive after the request finishes.
			if err := h.Dream(context.Background()); err != nil {
				logging.DreamError("background consolidation failed: %v", err)
			}
		}()
	}
	return nil
}

// Close flushes lessons and closes the database.
func (h *Hierarchical) Close() error {
	if h.vec != nil {
		if err := h.vec.Close(); err != nil {
			logging.MemoryWarn("[Close] vector index: %v", err)
		}
	}
	lerr := h.lessons.Close()
	serr := h.store.Close()
	if lerr != nil {
		return lerr
	}
	return serr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
