package conscious

import (
	"context"
	"fmt"
	"time"

	"aura/internal/llm"
	"aura/internal/logging"
	"aura/internal/skills"
	"aura/internal/types"
	"aura/internal/world"
)

// Stack runs the five layers in order for one deliberation pass.
type Stack struct {
	llm      types.LLMClient
	router   *llm.Router
	world    *world.Model
	registry *skills.Registry
	patterns *PatternTracker
}

// Options tune a single Process call.
type Options struct {
	SessionID    string
	TaskType     string // vision, coding, reasoning, general
	UseLite      bool
	Ensemble     bool
	Temperature  float64 // affect-derived sampling temperature; 0 keeps the provider default
	Directives   []string                // evolved directives from applied mutations
	Observations []Observation           // prior ReAct steps
	Trace        []types.Message         // recent working-memory turns
	Prefetched   map[string]string       // url -> extracted page text
	OnEvent      func(string, interface{})
}

// NewStack wires the consciousness layers.
func NewStack(client types.LLMClient, router *llm.Router, wm *world.Model, registry *skills.Registry) *Stack {
	return &Stack{
		llm:      client,
		router:   router,
		world:    wm,
		registry: registry,
		patterns: NewPatternTracker(),
	}
}

// Patterns exposes the reflex-promotion tracker.
func (s *Stack) Patterns() *PatternTracker { return s.patterns }

// Process runs perception through metacognition for one input. The returned
// response always has a non-empty FinalResponse and per-layer timings.
func (s *Stack) Process(ctx context.Context, input string, memCtx types.MemoryContext, opts Options) (*types.Response, error) {
	timings := make(map[string]time.Duration, 5)
	stageStart := time.Now()

	normalized := Perceive(input)
	timings["perception"] = time.Since(stageStart)

	stageStart = time.Now()
	in := Interpret(normalized, s.world)
	timings["interpretation"] = time.Since(stageStart)
	if opts.OnEvent != nil {
		opts.OnEvent("thought", fmt.Sprintf("intent=%s sentiment=%s", in.Intent, in.Sentiment))
	}

	stageStart = time.Now()
	resp, err := s.deliberate(ctx, normalized, in, memCtx, opts)
	timings["deliberation"] = time.Since(stageStart)
	if err != nil {
		return nil, fmt.Errorf("consciousness stack: %w", err)
	}

	stageStart = time.Now()
	issues := s.reflect(resp, memCtx)
	timings["reflection"] = time.Since(stageStart)
	if len(issues) > 0 {
		logging.ConsciousDebug("reflection issues: %v", issues)
	}

	resp.LayerTimings = timings
	stageStart = time.Now()
	s.metacognize(normalized, resp, !resp.NeedsEscalation)
	timings["metacognition"] = time.Since(stageStart)

	logging.Conscious("processed in %v (deliberation %v, escalate=%v)",
		total(timings), timings["deliberation"], resp.NeedsEscalation)
	return resp, nil
}

func total(timings map[string]time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range timings {
		sum += d
	}
	return sum
}
