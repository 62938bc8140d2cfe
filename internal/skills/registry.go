package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aura/internal/logging"
	"aura/internal/types"
)

// Registry holds all available skills and their telemetry. It is thread-safe
// and supports registration at runtime (dynamic reload).
type Registry struct {
	mu      sync.RWMutex
	skills  map[string]*Skill
	metrics map[string]*types.SkillMetric

	timeoutMin time.Duration
	timeoutMax time.Duration
}

// NewRegistry creates an empty registry with the given execution timeout
// clamp.
func NewRegistry(timeoutMin, timeoutMax time.Duration) *Registry {
	if timeoutMin <= 0 {
		timeoutMin = 30 * time.Second
	}
	if timeoutMax < timeoutMin {
		timeoutMax = 120 * time.Second
	}
	if timeoutMax < timeoutMin {
		timeoutMax = timeoutMin
	}
	return &Registry{
		skills:     make(map[string]*Skill),
		metrics:    make(map[string]*types.SkillMetric),
		timeoutMin: timeoutMin,
		timeoutMax: timeoutMax,
	}
}

// Register adds a skill. Overwriting an existing name is allowed (dynamic
// reload depends on it) but logged as a warning.
func (r *Registry) Register(s *Skill) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid skill: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[s.Name]; exists {
		logging.SkillsWarn("skill %s overwritten", s.Name)
	}
	r.skills[s.Name] = s
	if _, ok := r.metrics[s.Name]; !ok {
		r.metrics[s.Name] = &types.SkillMetric{}
	}
	logging.SkillsDebug("registered skill %s (dynamic=%v)", s.Name, s.Dynamic)
	return nil
}

// Unregister removes a skill (a deleted skills.d file).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.skills, name)
}

// Has reports whether a skill exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Execute runs a skill with the clamped timeout and records telemetry.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	s, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSkillNotFound, name)
	}
	if err := r.checkRequired(s, params); err != nil {
		return "", err
	}

	// Clamp any caller deadline into the configured window; skills get at
	// least timeoutMin and never more than timeoutMax.
	timeout := r.timeoutMax
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < r.timeoutMin {
			timeout = r.timeoutMin
		} else if remaining < timeout {
			timeout = remaining
		}
	}
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategorySkills, "Execute:"+name)
	start := time.Now()
	out, err := s.Handler(execCtx, params)
	elapsed := time.Since(start)
	timer.Stop()

	r.RecordExecution(name, err == nil, elapsed.Seconds())
	if err != nil {
		logging.SkillsError("skill %s failed after %v: %v", name, elapsed, err)
		return "", err
	}
	logging.Skills("skill %s completed in %v", name, elapsed)
	return out, nil
}

// checkRequired validates required schema parameters before execution.
func (r *Registry) checkRequired(s *Skill, params map[string]interface{}) error {
	for _, req := range s.Schema.Required {
		v, ok := params[req]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("skill %s: missing required parameter %q", s.Name, req)
		}
	}
	return nil
}

// RecordExecution updates a skill's reliability metric.
func (r *Registry) RecordExecution(name string, success bool, latencySeconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metrics[name]
	if !ok {
		m = &types.SkillMetric{}
		r.metrics[name] = m
	}
	m.Attempts++
	if success {
		m.Successes++
	} else {
		m.Failures++
	}
	latency := time.Duration(latencySeconds * float64(time.Second))
	m.AvgLatency = time.Duration((float64(m.AvgLatency)*float64(m.Attempts-1) + float64(latency)) / float64(m.Attempts))
}

// Metric returns a skill's telemetry.
func (r *Registry) Metric(name string) (types.SkillMetric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	if !ok {
		return types.SkillMetric{}, false
	}
	return *m, true
}

// List returns all skill names sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolDefinitions exports every skill for LLM tool calling.
func (r *Registry) ToolDefinitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s.ToolDefinition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Capability returns the capability gate name of a skill.
func (r *Registry) Capability(name string) string {
	s, ok := r.Get(name)
	if !ok {
		return ""
	}
	return s.Capability
}
