package conscious

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"aura/internal/reflex"
	"aura/internal/types"
)

// slowLayerThreshold flags a layer as slow in the metacognition notes.
const slowLayerThreshold = 8 * time.Second

// trackedPattern accumulates evidence that an input reliably maps to one
// action.
type trackedPattern struct {
	Input   string
	Skill   string
	Params  map[string]interface{}
	Count   int
	SumConf float64
}

// PromotionCandidate is an input->action pair ready for reflex promotion. It
// travels inside an evolution mutation, so it carries JSON tags: the mutation
// log round-trips through disk before the pattern is installed.
type PromotionCandidate struct {
	Input         string                 `json:"input"`
	Skill         string                 `json:"skill"`
	Params        map[string]interface{} `json:"params,omitempty"`
	Count         int                    `json:"count"`
	AvgConfidence float64                `json:"avg_confidence"`
}

// PatternTracker watches successful input->action pairs and surfaces
// reflex-promotion candidates at count >= 3 with average confidence >= 0.7.
type PatternTracker struct {
	mu       sync.Mutex
	patterns map[string]*trackedPattern
	trend    []float64 // recent confidence values, bounded
}

// NewPatternTracker creates an empty tracker.
func NewPatternTracker() *PatternTracker {
	return &PatternTracker{patterns: make(map[string]*trackedPattern)}
}

// Record notes one successful input->action execution.
func (t *PatternTracker) Record(input string, action types.ActionCall, confidence float64) {
	key := strings.ToLower(strings.TrimSpace(input)) + "|" + action.Skill
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.patterns[key]
	if !ok {
		p = &trackedPattern{Input: input, Skill: action.Skill, Params: action.Parameters}
		t.patterns[key] = p
	}
	p.Count++
	p.SumConf += confidence
}

// RecordConfidence appends to the confidence trend window.
func (t *PatternTracker) RecordConfidence(c float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trend = append(t.trend, c)
	if len(t.trend) > 20 {
		t.trend = t.trend[1:]
	}
}

// Trend returns the mean of the recent confidence window.
func (t *PatternTracker) Trend() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.trend) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range t.trend {
		sum += c
	}
	return sum / float64(len(t.trend))
}

// Promotions returns patterns meeting the reflex thresholds and clears them
// so each candidate is surfaced once.
func (t *PatternTracker) Promotions() []PromotionCandidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []PromotionCandidate
	for key, p := range t.patterns {
		avg := p.SumConf / float64(p.Count)
		if p.Count >= reflex.PromoteCount && avg >= reflex.PromoteConfidence {
			out = append(out, PromotionCandidate{
				Input:         p.Input,
				Skill:         p.Skill,
				Params:        p.Params,
				Count:         p.Count,
				AvgConfidence: avg,
			})
			delete(t.patterns, key)
		}
	}
	return out
}

// metacognize is layer five: annotate the response with self-observations,
// update the confidence trend, and record input->action patterns.
func (s *Stack) metacognize(input string, resp *types.Response, succeeded bool) {
	s.patterns.RecordConfidence(resp.FinalThought.Confidence)
	if succeeded && resp.Action != nil {
		s.patterns.Record(input, *resp.Action, resp.FinalThought.Confidence)
	}

	var notes []string
	for layer, d := range resp.LayerTimings {
		if d > slowLayerThreshold {
			notes = append(notes, fmt.Sprintf("%s layer was slow (%v)", layer, d.Round(time.Millisecond)))
		}
	}
	if trend := s.patterns.Trend(); trend > 0 {
		notes = append(notes, fmt.Sprintf("confidence trend %.2f", trend))
	}

	if len(notes) > 0 {
		if resp.Metacognition != "" {
			resp.Metacognition += "; "
		}
		resp.Metacognition += strings.Join(notes, "; ")
	}
}
