package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"aura/internal/logging"
	"aura/internal/types"
)

// modelSwitcher is implemented by every provider client in this package.
type modelSwitcher interface {
	SetModel(model string)
	GetModel() string
}

// Router selects among registered model profiles by capability match and
// earned trust, and switches the underlying client accordingly. Trust moves
// slowly: one failure does not bench a model, a streak does.
type Router struct {
	mu       sync.RWMutex
	client   types.LLMClient
	profiles map[string]*types.ModelProfile
	active   string
}

// NewRouter wraps a provider client with routing over the given model names.
// The first model becomes active.
func NewRouter(client types.LLMClient, models []string) *Router {
	r := &Router{
		client:   client,
		profiles: make(map[string]*types.ModelProfile),
	}
	for i, name := range models {
		r.profiles[name] = &types.ModelProfile{
			Name:         name,
			Capabilities: guessCapabilities(name),
			TrustScore:   0.7, // neutral starting trust
			Available:    true,
		}
		if i == 0 {
			r.active = name
		}
	}
	if sw, ok := client.(modelSwitcher); ok && r.active != "" {
		sw.SetModel(r.active)
	}
	return r
}

// guessCapabilities infers capability tags from the model name. Profiles can
// be refined later via Register.
func guessCapabilities(name string) []string {
	lower := strings.ToLower(name)
	caps := []string{"general"}
	for tag, needles := range map[string][]string{
		"vision":    {"vision", "vl", "gemini", "4o", "llava"},
		"coding":    {"code", "coder", "codex"},
		"reasoning": {"r1", "think", "reason", "o1", "o3", "pro"},
		"tools":     {"gpt", "gemini", "claude", "qwen", "llama3", "mistral"},
	} {
		for _, n := range needles {
			if strings.Contains(lower, n) {
				caps = append(caps, tag)
				break
			}
		}
	}
	return caps
}

// Register adds or replaces a model profile.
func (r *Router) Register(profile types.ModelProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := profile
	r.profiles[profile.Name] = &p
	if r.active == "" {
		r.active = profile.Name
	}
}

// Active returns the currently selected model name.
func (r *Router) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Use switches to a named model explicitly (the /model command).
func (r *Router) Use(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[name]; !ok {
		return fmt.Errorf("unknown model %q", name)
	}
	r.active = name
	if sw, ok := r.client.(modelSwitcher); ok {
		sw.SetModel(name)
	}
	logging.API("[Router] switched to model %s", name)
	return nil
}

// Select picks the best model for the required capabilities and makes it
// active. With no viable candidate the current model is kept.
func (r *Router) Select(required []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := ""
	bestScore := -1.0
	for name, p := range r.profiles {
		if !p.Available {
			continue
		}
		score := r.score(p, required)
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	if best == "" {
		return r.active
	}
	if best != r.active {
		logging.APIDebug("[Router] selecting %s over %s for caps=%v (score=%.2f)", best, r.active, required, bestScore)
		r.active = best
		if sw, ok := r.client.(modelSwitcher); ok {
			sw.SetModel(best)
		}
	}
	return r.active
}

// capMatchWeight prices one capability match above maximal trust (0.5): a
// model that can do the job outranks a merely trusted one.
const capMatchWeight = 1.0

// score ranks a profile: capability matches dominate, trust breaks ties,
// latency and error history drag.
func (r *Router) score(p *types.ModelProfile, required []string) float64 {
	matched := 0.0
	for _, req := range required {
		for _, cap := range p.Capabilities {
			if cap == req {
				matched++
				break
			}
		}
	}
	latencyPenalty := p.AvgLatency * 0.05
	errorPenalty := float64(p.ErrorCount) * 0.1
	return matched*capMatchWeight + p.TrustScore*0.5 - latencyPenalty - errorPenalty
}

// RecordResult updates a profile after a call. Trust and latency both move
// as exponential averages, so recent behavior dominates.
func (r *Router) RecordResult(name string, success bool, latencySeconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[name]
	if !ok {
		return
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	} else {
		p.ErrorCount++
	}
	const alpha = 0.2
	p.TrustScore = p.TrustScore*(1-alpha) + outcome*alpha
	if p.AvgLatency == 0 {
		p.AvgLatency = latencySeconds
	} else {
		p.AvgLatency = p.AvgLatency*0.8 + latencySeconds*0.2
	}
	// Quarantine after sustained failure; /benchmark or a success via another
	// path can restore it.
	if p.TrustScore < 0.2 {
		p.Available = false
		logging.APIWarn("[Router] model %s quarantined (trust=%.2f errors=%d)", name, p.TrustScore, p.ErrorCount)
	}
}

// Restore marks a model available again and resets its error streak.
func (r *Router) Restore(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[name]; ok {
		p.Available = true
		p.ErrorCount = 0
		if p.TrustScore < 0.5 {
			p.TrustScore = 0.5
		}
	}
}

// Scorecard returns profiles sorted by trust, best first.
func (r *Router) Scorecard() []types.ModelProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ModelProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrustScore != out[j].TrustScore {
			return out[i].TrustScore > out[j].TrustScore
		}
		return out[i].Name < out[j].Name
	})
	return out
}
