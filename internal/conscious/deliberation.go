package conscious

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"aura/internal/llm"
	"aura/internal/logging"
	"aura/internal/types"
)

// Observation is one prior ReAct step fed back into deliberation.
type Observation struct {
	Action types.ActionCall
	Result string
}

const baseSystemPrompt = `You are Aura, a personal assistant with persistent memory and real capabilities.
Speak naturally in first person. Never invent facts about the user; if memory
does not contain something, say so. When a skill can accomplish the request,
emit an action instead of describing what you would do.`

var liteSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"final_response": map[string]interface{}{"type": "string"},
		"action": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"skill":      map[string]interface{}{"type": "string"},
				"parameters": map[string]interface{}{"type": "object"},
			},
		},
		"confidence": map[string]interface{}{"type": "number"},
	},
	"required": []string{"final_response", "confidence"},
}

var fullSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"final_thought": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"intent_summary":      map[string]interface{}{"type": "string"},
				"primary_strategy":    map[string]interface{}{"type": "string"},
				"confidence":          map[string]interface{}{"type": "number"},
				"assumptions":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"constraints":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"risk_score":          map[string]interface{}{"type": "number"},
				"rejected_strategies": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			"required": []string{"intent_summary", "primary_strategy", "confidence"},
		},
		"action": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"skill":      map[string]interface{}{"type": "string"},
				"parameters": map[string]interface{}{"type": "object"},
			},
		},
		"final_response":         map[string]interface{}{"type": "string"},
		"needs_escalation":       map[string]interface{}{"type": "boolean"},
		"internal_metacognition": map[string]interface{}{"type": "string"},
	},
	"required": []string{"final_thought", "final_response"},
}

// temperatureSetter is implemented by provider clients that honor a sampling
// temperature.
type temperatureSetter interface {
	SetTemperature(t float64)
}

// deliberate is layer three: model routing, prompt composition, and one of
// three call modes (native tools, lite schema, full schema).
func (s *Stack) deliberate(ctx context.Context, input string, in Interpretation, memCtx types.MemoryContext, opts Options) (*types.Response, error) {
	required := requiredModelCaps(in, opts.TaskType)
	if s.router != nil {
		model := s.router.Select(required)
		if opts.OnEvent != nil {
			opts.OnEvent("model", model)
		}
	}
	if opts.Temperature > 0 {
		if ts, ok := s.llm.(temperatureSetter); ok {
			ts.SetTemperature(opts.Temperature)
		}
	}

	var opinions map[string]string
	if opts.Ensemble && wantsEnsemble(in) {
		opinions = s.debate(ctx, input, in)
	}

	system := s.buildSystemPrompt(memCtx, opinions, opts)
	user := s.buildUserPrompt(input, in, opts)
	imagePath := screenshotInObservations(opts.Observations)

	start := time.Now()
	resp, err := s.callModel(ctx, system, user, imagePath, in, opts)
	latency := time.Since(start).Seconds()
	if s.router != nil {
		s.router.RecordResult(s.router.Active(), err == nil, latency)
	}
	if err != nil {
		return nil, err
	}
	resp.EnsembleOpinions = opinions
	return resp, nil
}

// requiredModelCaps translates interpretation output into router capability
// tags.
func requiredModelCaps(in Interpretation, taskType string) []string {
	var caps []string
	switch taskType {
	case "vision":
		caps = append(caps, "vision")
	case "coding":
		caps = append(caps, "coding")
	case "reasoning":
		caps = append(caps, "reasoning")
	}
	for _, c := range in.Capabilities {
		if c == "vision" {
			caps = append(caps, "vision")
		}
	}
	return caps
}

func (s *Stack) callModel(ctx context.Context, system, user, imagePath string, in Interpretation, opts Options) (*types.Response, error) {
	// Native tool calling when the active model supports it and the
	// registry has schemas to offer.
	if s.supportsTools() && s.registry != nil {
		if tools := s.registry.ToolDefinitions(); len(tools) > 0 && !opts.UseLite {
			tr, err := s.llm.CompleteWithTools(ctx, system, user, tools)
			if err == nil {
				return toolResponse(tr), nil
			}
			logging.ConsciousWarn("tool call failed, falling back to structured: %v", err)
		}
	}

	if opts.UseLite {
		raw, err := s.llm.CompleteStructured(ctx, system, user, liteSchema, imagePath)
		if err != nil {
			return nil, fmt.Errorf("deliberation (lite): %w", err)
		}
		lr, _ := llm.ParseLite(raw)
		return lr.Lift(), nil
	}

	raw, err := s.llm.CompleteStructured(ctx, system, user, fullSchema, imagePath)
	if err != nil {
		return nil, fmt.Errorf("deliberation (full): %w", err)
	}
	resp, _ := llm.ParseFull(raw)
	return resp, nil
}

func (s *Stack) supportsTools() bool {
	if s.router == nil {
		return false
	}
	for _, p := range s.router.Scorecard() {
		if p.Name != s.router.Active() {
			continue
		}
		for _, c := range p.Capabilities {
			if c == "tools" {
				return true
			}
		}
	}
	return false
}

// toolResponse maps a native tool-call reply into the Response shape.
func toolResponse(tr *types.LLMToolResponse) *types.Response {
	resp := &types.Response{
		FinalThought:  toolThought(tr),
		FinalResponse: tr.Text,
	}
	if len(tr.ToolCalls) > 0 {
		call := tr.ToolCalls[0]
		resp.Action = &types.ActionCall{Skill: call.Name, Parameters: call.Input}
		if resp.FinalResponse == "" {
			resp.FinalResponse = fmt.Sprintf("Running %s.", call.Name)
		}
	}
	return resp
}

// toolThought synthesizes a minimal thought for tool-call responses, which
// carry no explicit reasoning payload.
func toolThought(tr *types.LLMToolResponse) types.Thought {
	confidence := 0.75
	if len(tr.ToolCalls) > 0 {
		confidence = 0.85
	}
	return types.Thought{
		IntentSummary:   "native tool call",
		PrimaryStrategy: "tool_use",
		Confidence:      confidence,
	}
}

func (s *Stack) buildSystemPrompt(memCtx types.MemoryContext, opinions map[string]string, opts Options) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\n")

	if memCtx.IdentityBlock != "" {
		b.WriteString(memCtx.IdentityBlock)
		b.WriteString("\n")
	}

	if len(opts.Directives) > 0 {
		b.WriteString("\nEVOLVED DIRECTIVES:\n")
		for _, d := range opts.Directives {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	if len(memCtx.Wisdom) > 0 {
		b.WriteString("\nCONSOLIDATED WISDOM:\n")
		for _, w := range memCtx.Wisdom {
			fmt.Fprintf(&b, "- [%s] %s\n", w.Category, w.Insight)
		}
	}
	if len(memCtx.Lessons) > 0 {
		b.WriteString("\nLESSONS:\n")
		for _, l := range memCtx.Lessons {
			fmt.Fprintf(&b, "- %s\n", l.Text)
		}
	}
	if len(memCtx.Episodes) > 0 {
		b.WriteString("\nRELEVANT PAST EPISODES:\n")
		for _, e := range memCtx.Episodes {
			fmt.Fprintf(&b, "- %s -> %s (%s)\n", e.TriggerContext, e.Action, e.Outcome)
		}
	}

	if s.registry != nil {
		names := s.registry.List()
		if len(names) > 0 {
			b.WriteString("\nAVAILABLE SKILLS: ")
			b.WriteString(strings.Join(names, ", "))
			b.WriteString("\n")
		}
	}

	if s.world != nil {
		if summary := s.world.Summary(); summary != "" {
			b.WriteString("\nWORLD MODEL:\n")
			b.WriteString(summary)
			b.WriteString("\n")
		}
	}

	if len(opinions) > 0 {
		b.WriteString("\nSPECIALIST PERSPECTIVES:\n")
		for name, op := range opinions {
			fmt.Fprintf(&b, "%s: %s\n", name, op)
		}
	}

	return b.String()
}

func (s *Stack) buildUserPrompt(input string, in Interpretation, opts Options) string {
	var b strings.Builder

	if len(opts.Observations) > 0 {
		b.WriteString("ACTIONS TAKEN SO FAR:\n")
		for _, o := range opts.Observations {
			fmt.Fprintf(&b, "- %s(%v) -> %s\n", o.Action.Skill, o.Action.Parameters, truncate(o.Result, 500))
		}
		b.WriteString("\nDecide the next step or give the final answer.\n\n")
	}

	if len(opts.Trace) > 0 {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, m := range opts.Trace {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, truncate(m.Content, 300))
		}
		b.WriteString("\n")
	}

	if len(opts.Prefetched) > 0 {
		b.WriteString("FETCHED PAGE CONTENT:\n")
		for url, content := range opts.Prefetched {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", url, truncate(content, 1200))
		}
	}

	fmt.Fprintf(&b, "USER (%s, %s): %s", in.Intent, in.Sentiment, input)
	return b.String()
}

// Specialist personas for the ensemble debate.
var specialists = map[string]string{
	"Critic":    "Find the flaws, risks, and failure modes in how the assistant might handle this request. Two sentences.",
	"Explorer":  "Suggest the most creative or unexpected way to satisfy this request. Two sentences.",
	"Aligner":   "State what the user most likely actually wants, beneath the literal words. Two sentences.",
	"Architect": "Outline the cleanest step-by-step plan to fulfill this request. Three steps maximum.",
}

// wantsEnsemble triages whether a request deserves the debate overhead.
func wantsEnsemble(in Interpretation) bool {
	switch in.Intent {
	case IntentCoding, IntentResearch:
		return true
	}
	return in.Sentiment == SentimentFrustrated
}

// pickSpecialists selects 2-4 personas by intent and sentiment.
func pickSpecialists(in Interpretation) []string {
	picked := []string{"Aligner"}
	switch in.Intent {
	case IntentCoding:
		picked = append(picked, "Architect", "Critic")
	case IntentResearch:
		picked = append(picked, "Explorer", "Critic")
	default:
		picked = append(picked, "Critic")
	}
	if in.Sentiment == SentimentFrustrated && len(picked) < 4 {
		picked = append(picked, "Explorer")
	}
	return picked
}

// debate fans specialist sub-prompts out in parallel and collects their
// perspectives. Individual failures are dropped, not fatal.
func (s *Stack) debate(ctx context.Context, input string, in Interpretation) map[string]string {
	picked := pickSpecialists(in)

	debateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	results := make([]string, len(picked))
	g, gctx := errgroup.WithContext(debateCtx)
	for i, name := range picked {
		g.Go(func() error {
			out, err := s.llm.CompleteWithSystem(gctx, specialists[name], input)
			if err != nil {
				logging.ConsciousDebug("specialist %s failed: %v", name, err)
				return nil
			}
			results[i] = strings.TrimSpace(out)
			return nil
		})
	}
	_ = g.Wait()

	opinions := make(map[string]string, len(picked))
	for i, name := range picked {
		if results[i] != "" {
			opinions[name] = results[i]
		}
	}
	return opinions
}

// screenshotInObservations returns the most recent image path produced by a
// prior action, for vision-capable continuation.
func screenshotInObservations(obs []Observation) string {
	for i := len(obs) - 1; i >= 0; i-- {
		r := strings.TrimSpace(obs[i].Result)
		if strings.HasSuffix(r, ".png") || strings.HasSuffix(r, ".jpg") || strings.HasSuffix(r, ".jpeg") {
			return r
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
