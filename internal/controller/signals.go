package controller

import "sync"

// Signals is the internal affect block: frustration rises on failures,
// confidence follows deliberation outcomes, urgency follows the request
// sentiment. The deliberation sampling temperature derives from it.
type Signals struct {
	mu          sync.Mutex
	frustration float64
	confidence  float64
	urgency     float64
}

// NewSignals starts calm and moderately confident.
func NewSignals() *Signals {
	return &Signals{confidence: 0.7}
}

// RecordFailure bumps frustration and dents confidence.
func (s *Signals) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frustration = clamp01(s.frustration + 0.2)
	s.confidence = clamp01(s.confidence - 0.1)
}

// RecordSuccess cools frustration and rebuilds confidence.
func (s *Signals) RecordSuccess(confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frustration = clamp01(s.frustration - 0.1)
	s.confidence = clamp01(s.confidence*0.7 + confidence*0.3)
}

// SetUrgency records the perceived urgency of the current request.
func (s *Signals) SetUrgency(u float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urgency = clamp01(u)
}

// Snapshot returns the current values.
func (s *Signals) Snapshot() (frustration, confidence, urgency float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frustration, s.confidence, s.urgency
}

// Temperature derives the deliberation sampling temperature from the block.
// Stress (frustration, urgency) cools the model toward precision; confidence
// warms it. Calm and moderately confident lands around 0.44.
func (s *Signals) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := 0.4 + 0.2*(s.confidence-0.5) - 0.2*s.frustration - 0.1*s.urgency
	if t < 0.1 {
		t = 0.1
	}
	return t
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
