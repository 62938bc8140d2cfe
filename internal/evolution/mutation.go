package evolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aura/internal/logging"
	"aura/internal/persist"
	"aura/internal/types"
)

// autoApplyThreshold is the success count at which a pending mutation
// applies itself without explicit approval.
const autoApplyThreshold = 3

// Engine tracks proposed self-modifications and their lifecycle. The
// lifecycle is one-way: pending -> applied or pending -> rejected, never
// back.
type Engine struct {
	mu        sync.RWMutex
	mutations map[string]*types.Mutation
	history   []*types.Mutation
	crystal   string
	path      string
	debouncer *persist.Debouncer

	// onApply is invoked outside the lock when a mutation transitions to
	// applied, so callers can enact the change.
	onApply func(m types.Mutation)
}

type evolutionFile struct {
	Mutations           []*types.Mutation `json:"mutations"`
	History             []*types.Mutation `json:"history,omitempty"`
	CrystallizedSummary string            `json:"crystallized_summary,omitempty"`
	SavedAt             time.Time         `json:"saved_at"`
}

// NewEngine loads evolution.json from the state directory.
func NewEngine(stateDir string, onApply func(m types.Mutation)) (*Engine, error) {
	e := &Engine{
		mutations: make(map[string]*types.Mutation),
		path:      filepath.Join(stateDir, "evolution.json"),
		onApply:   onApply,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	e.debouncer = persist.New(e.save, 0, 0) // default 5s quiet window, 30s bound
	e.debouncer.OnError(func(err error) {
		logging.EvolutionError("debounced save failed: %v", err)
	})
	return e, nil
}

func (e *Engine) load() error {
	data, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read evolution state: %w", err)
	}
	var f evolutionFile
	if err := json.Unmarshal(data, &f); err != nil {
		logging.EvolutionWarn("evolution state corrupt, starting fresh: %v", err)
		os.Rename(e.path, e.path+".corrupt")
		return nil
	}
	for _, m := range f.Mutations {
		e.mutations[m.ID] = m
	}
	e.history = f.History
	e.crystal = f.CrystallizedSummary
	logging.Evolution("loaded %d mutations, %d archived", len(e.mutations), len(e.history))
	return nil
}

func (e *Engine) save() error {
	e.mu.RLock()
	f := evolutionFile{
		History:             e.history,
		CrystallizedSummary: e.crystal,
		SavedAt:             time.Now(),
	}
	for _, m := range e.mutations {
		f.Mutations = append(f.Mutations, m)
	}
	e.mu.RUnlock()

	sort.Slice(f.Mutations, func(i, j int) bool {
		return f.Mutations[i].CreatedAt.Before(f.Mutations[j].CreatedAt)
	})

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, e.path)
}

// Propose records a mutation. Duplicate descriptions of the same type are
// collapsed into the existing proposal.
func (e *Engine) Propose(mtype types.MutationType, description string, value interface{}) *types.Mutation {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(description))
	for _, m := range e.mutations {
		if m.Type == mtype && strings.ToLower(strings.TrimSpace(m.Description)) == key {
			return m
		}
	}

	m := &types.Mutation{
		ID:          uuid.NewString(),
		Type:        mtype,
		Description: description,
		Value:       value,
		Status:      types.MutationPending,
		CreatedAt:   time.Now(),
	}
	e.mutations[m.ID] = m
	e.debouncer.MarkDirty()
	logging.Evolution("proposed mutation %s: %s", m.ID[:8], description)
	return m
}

// RecordSuccess bumps a pending mutation's success count and auto-applies
// at the threshold. Returns true if this call applied it.
func (e *Engine) RecordSuccess(id string) (bool, error) {
	e.mu.Lock()
	m, ok := e.mutations[id]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("unknown mutation %q", id)
	}
	if m.Status != types.MutationPending {
		e.mu.Unlock()
		return false, nil
	}
	m.SuccessCount++
	applied := m.SuccessCount >= autoApplyThreshold
	if applied {
		e.applyLocked(m)
	}
	snapshot := *m
	e.mu.Unlock()

	e.debouncer.MarkDirty()
	if applied {
		logging.Evolution("mutation %s auto-applied after %d successes", id[:8], snapshot.SuccessCount)
		if e.onApply != nil {
			e.onApply(snapshot)
		}
	}
	return applied, nil
}

// RecordPatternSuccess bumps every pending mutation tied to a pattern and
// auto-applies any that reach the threshold. Returns the applied mutations.
func (e *Engine) RecordPatternSuccess(patternID string) []types.Mutation {
	if patternID == "" {
		return nil
	}

	e.mu.Lock()
	var applied []types.Mutation
	for _, m := range e.mutations {
		if m.PatternID != patternID || m.Status != types.MutationPending {
			continue
		}
		m.SuccessCount++
		if m.SuccessCount >= autoApplyThreshold {
			e.applyLocked(m)
			applied = append(applied, *m)
		}
	}
	e.mu.Unlock()

	e.debouncer.MarkDirty()
	for _, m := range applied {
		logging.Evolution("mutation %s auto-applied via pattern %s", m.ID[:8], patternID)
		if e.onApply != nil {
			e.onApply(m)
		}
	}
	return applied
}

// ProposeForPattern records a mutation tied to a learned pattern so repeated
// successes can auto-apply it.
func (e *Engine) ProposeForPattern(mtype types.MutationType, description, patternID string, value interface{}) *types.Mutation {
	m := e.Propose(mtype, description, value)
	e.mu.Lock()
	if m.PatternID == "" {
		m.PatternID = patternID
	}
	e.mu.Unlock()
	return m
}

// Approve applies a pending mutation immediately.
func (e *Engine) Approve(id string) error {
	e.mu.Lock()
	m, ok := e.findPrefixLocked(id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("unknown mutation %q", id)
	}
	if m.Status != types.MutationPending {
		e.mu.Unlock()
		return fmt.Errorf("mutation %s is already %s", m.ID[:8], m.Status)
	}
	e.applyLocked(m)
	snapshot := *m
	e.mu.Unlock()

	e.debouncer.MarkDirty()
	logging.Evolution("mutation %s approved", snapshot.ID[:8])
	if e.onApply != nil {
		e.onApply(snapshot)
	}
	return nil
}

// Reject permanently declines a pending mutation.
func (e *Engine) Reject(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.findPrefixLocked(id)
	if !ok {
		return fmt.Errorf("unknown mutation %q", id)
	}
	if m.Status != types.MutationPending {
		return fmt.Errorf("mutation %s is already %s", m.ID[:8], m.Status)
	}
	m.Status = types.MutationRejected
	e.debouncer.MarkDirty()
	logging.Evolution("mutation %s rejected", m.ID[:8])
	return nil
}

func (e *Engine) applyLocked(m *types.Mutation) {
	now := time.Now()
	m.Status = types.MutationApplied
	m.AppliedAt = &now
}

// findPrefixLocked resolves an ID or unambiguous ID prefix.
func (e *Engine) findPrefixLocked(id string) (*types.Mutation, bool) {
	if m, ok := e.mutations[id]; ok {
		return m, true
	}
	var match *types.Mutation
	for _, m := range e.mutations {
		if strings.HasPrefix(m.ID, id) {
			if match != nil {
				return nil, false // ambiguous
			}
			match = m
		}
	}
	return match, match != nil
}

// Pending returns pending mutations oldest first.
func (e *Engine) Pending() []types.Mutation {
	return e.byStatus(types.MutationPending)
}

// Applied returns applied mutations oldest first.
func (e *Engine) Applied() []types.Mutation {
	return e.byStatus(types.MutationApplied)
}

func (e *Engine) byStatus(status types.MutationStatus) []types.Mutation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []types.Mutation
	for _, m := range e.mutations {
		if m.Status == status {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a mutation by ID or prefix.
func (e *Engine) Get(id string) (types.Mutation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.findPrefixLocked(id)
	if !ok {
		return types.Mutation{}, false
	}
	return *m, true
}

// ArchiveApplied moves all applied mutations into history and records the
// crystallized narrative.
func (e *Engine) ArchiveApplied(summary string) int {
	e.mu.Lock()
	moved := 0
	for id, m := range e.mutations {
		if m.Status != types.MutationApplied {
			continue
		}
		e.history = append(e.history, m)
		delete(e.mutations, id)
		moved++
	}
	if summary != "" {
		e.crystal = summary
	}
	e.mu.Unlock()

	if moved > 0 {
		e.debouncer.MarkDirty()
		logging.Evolution("archived %d applied mutations", moved)
	}
	return moved
}

// CrystallizedSummary returns the current identity narrative.
func (e *Engine) CrystallizedSummary() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.crystal
}

// History returns archived mutations oldest first.
func (e *Engine) History() []types.Mutation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Mutation, len(e.history))
	for i, m := range e.history {
		out[i] = *m
	}
	return out
}

// Flush forces a synchronous save.
func (e *Engine) Flush() error { return e.debouncer.Flush() }

// Close flushes and stops the persistence loop.
func (e *Engine) Close() error {
	e.debouncer.Stop()
	return e.save()
}
