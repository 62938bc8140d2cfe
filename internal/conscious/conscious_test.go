package conscious

import (
	"context"
	"strings"
	"testing"
	"time"

	"aura/internal/skills"
	"aura/internal/types"
)

type fakeLLM struct {
	structured string
	plain      string
	err        error
	model      string
	temp       float64
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.plain, f.err
}
func (f *fakeLLM) CompleteWithSystem(ctx context.Context, sys, user string) (string, error) {
	return f.plain, f.err
}
func (f *fakeLLM) CompleteStructured(ctx context.Context, sys, user string, schema map[string]interface{}, imagePath string) (string, error) {
	return f.structured, f.err
}
func (f *fakeLLM) CompleteWithTools(ctx context.Context, sys, user string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return &types.LLMToolResponse{Text: f.plain}, f.err
}
func (f *fakeLLM) SetModel(m string) { f.model = m }
func (f *fakeLLM) GetModel() string  { return f.model }

func (f *fakeLLM) SetTemperature(t float64) { f.temp = t }

func echoRegistry(t *testing.T) *skills.Registry {
	t.Helper()
	r := skills.NewRegistry(30*time.Second, 120*time.Second)
	r.Register(&skills.Skill{
		Name: "echo",
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return "ok", nil
		},
	})
	return r
}

func TestPerceiveNormalizesWhitespace(t *testing.T) {
	got := Perceive("  open   \t spotify \n ")
	if got != "open spotify" {
		t.Errorf("got %q", got)
	}
}

func TestInterpretExtractsEntities(t *testing.T) {
	in := Interpret(`summarize https://example.com/post and save to notes.md with "high detail"`, nil)
	if len(in.Entities.URLs) != 1 || in.Entities.URLs[0] != "https://example.com/post" {
		t.Errorf("urls = %v", in.Entities.URLs)
	}
	found := false
	for _, p := range in.Entities.Paths {
		if p == "notes.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("paths = %v, want notes.md", in.Entities.Paths)
	}
	if len(in.Entities.Quoted) != 1 || in.Entities.Quoted[0] != "high detail" {
		t.Errorf("quoted = %v", in.Entities.Quoted)
	}
}

func TestInterpretIntents(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"pause the music please", IntentMediaControl},
		{"open spotify", IntentSystemCommand},
		{"fix the bug in this function", IntentCoding},
		{"no, that's not what i asked", IntentCorrection},
		{"research the history of datalog", IntentResearch},
		{"what is the capital of peru?", IntentQuestion},
		{"good morning!", IntentConversation},
	}
	for _, c := range cases {
		if got := Interpret(c.text, nil).Intent; got != c.want {
			t.Errorf("Interpret(%q).Intent = %s, want %s", c.text, got, c.want)
		}
	}
}

func TestInterpretSentiment(t *testing.T) {
	if got := Interpret("do it right now, this is urgent", nil).Sentiment; got != SentimentUrgent {
		t.Errorf("sentiment = %s, want urgent", got)
	}
	if got := Interpret("ugh, it's still broken again", nil).Sentiment; got != SentimentFrustrated {
		t.Errorf("sentiment = %s, want frustrated", got)
	}
	if got := Interpret("hello there", nil).Sentiment; got != SentimentNeutral {
		t.Errorf("sentiment = %s, want neutral", got)
	}
}

func TestRecommendedCapabilities(t *testing.T) {
	in := Interpret("research https://example.com and write findings to report.md", nil)
	want := map[string]bool{"internet": true, "filesystem_read": true}
	for c := range want {
		found := false
		for _, got := range in.Capabilities {
			if got == c {
				found = true
			}
		}
		if !found {
			t.Errorf("capabilities %v missing %s", in.Capabilities, c)
		}
	}
}

func TestReflectionNullifiesUnknownSkill(t *testing.T) {
	s := &Stack{registry: echoRegistry(t)}
	resp := &types.Response{
		FinalThought:  types.Thought{Confidence: 0.9},
		Action:        &types.ActionCall{Skill: "teleport.home"},
		FinalResponse: "On it.",
	}
	issues := s.reflect(resp, types.MemoryContext{})
	if resp.Action != nil {
		t.Error("unknown skill action should be nullified")
	}
	if len(issues) == 0 {
		t.Error("audit should report the unknown skill")
	}
	if !strings.Contains(resp.FinalResponse, "reconsidered") {
		t.Errorf("response should acknowledge the pivot: %q", resp.FinalResponse)
	}
}

func TestReflectionPunishesRoboticPhrasing(t *testing.T) {
	s := &Stack{registry: echoRegistry(t)}
	resp := &types.Response{
		FinalThought:  types.Thought{Confidence: 0.8},
		FinalResponse: "As an AI, I am unable to help with that.",
	}
	s.reflect(resp, types.MemoryContext{})
	if resp.FinalThought.Confidence >= 0.8 {
		t.Errorf("confidence should drop, got %.2f", resp.FinalThought.Confidence)
	}
}

func TestReflectionFlagsFabricatedMemory(t *testing.T) {
	s := &Stack{registry: echoRegistry(t)}
	resp := &types.Response{
		FinalThought:  types.Thought{Confidence: 0.9},
		FinalResponse: "According to your calendar, you are free at noon.",
	}
	s.reflect(resp, types.MemoryContext{})
	if !resp.NeedsEscalation {
		t.Error("fabricated personal-data claim should escalate")
	}
}

func TestReflectionNeverLeavesEmptyResponse(t *testing.T) {
	s := &Stack{registry: echoRegistry(t)}
	resp := &types.Response{FinalThought: types.Thought{Confidence: 0.5}}
	s.reflect(resp, types.MemoryContext{})
	if strings.TrimSpace(resp.FinalResponse) == "" {
		t.Fatal("FinalResponse must never be empty after reflection")
	}
}

func TestLowConfidenceEscalates(t *testing.T) {
	s := &Stack{registry: echoRegistry(t)}
	resp := &types.Response{
		FinalThought:  types.Thought{Confidence: 0.2},
		FinalResponse: "Maybe?",
	}
	s.reflect(resp, types.MemoryContext{})
	if !resp.NeedsEscalation {
		t.Error("confidence < 0.3 should escalate")
	}
}

func TestPatternPromotionThresholds(t *testing.T) {
	tr := NewPatternTracker()
	action := types.ActionCall{Skill: "media.control", Parameters: map[string]interface{}{"action": "pause"}}

	tr.Record("pause music", action, 0.9)
	tr.Record("pause music", action, 0.8)
	if got := tr.Promotions(); len(got) != 0 {
		t.Fatalf("promoted after 2 observations: %v", got)
	}

	tr.Record("pause music", action, 0.7)
	got := tr.Promotions()
	if len(got) != 1 {
		t.Fatalf("promotions = %v, want one", got)
	}
	if got[0].Skill != "media.control" || got[0].Count != 3 {
		t.Errorf("candidate = %+v", got[0])
	}

	// Surfaced once, then cleared.
	if again := tr.Promotions(); len(again) != 0 {
		t.Error("candidate should only surface once")
	}
}

func TestLowConfidencePatternNeverPromotes(t *testing.T) {
	tr := NewPatternTracker()
	action := types.ActionCall{Skill: "shell.run"}
	for i := 0; i < 5; i++ {
		tr.Record("run the thing", action, 0.4)
	}
	if got := tr.Promotions(); len(got) != 0 {
		t.Errorf("low-confidence pattern promoted: %v", got)
	}
}

func TestStackProcessLite(t *testing.T) {
	client := &fakeLLM{structured: `{"final_response": "It is 3pm.", "confidence": 0.9}`}
	s := NewStack(client, nil, nil, echoRegistry(t))

	resp, err := s.Process(context.Background(), "what time is it?", types.MemoryContext{}, Options{UseLite: true})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.FinalResponse != "It is 3pm." {
		t.Errorf("response = %q", resp.FinalResponse)
	}
	for _, layer := range []string{"perception", "interpretation", "deliberation", "reflection"} {
		if _, ok := resp.LayerTimings[layer]; !ok {
			t.Errorf("missing timing for %s", layer)
		}
	}
}

func TestProcessAppliesAffectTemperature(t *testing.T) {
	client := &fakeLLM{structured: `{"final_response": "Done.", "confidence": 0.9}`}
	s := NewStack(client, nil, nil, echoRegistry(t))

	_, err := s.Process(context.Background(), "hello", types.MemoryContext{}, Options{UseLite: true, Temperature: 0.45})
	if err != nil {
		t.Fatal(err)
	}
	if client.temp != 0.45 {
		t.Errorf("client temperature = %.2f, want 0.45", client.temp)
	}
}

func TestStackProcessFullWithAction(t *testing.T) {
	client := &fakeLLM{structured: `{
		"final_thought": {"intent_summary": "open app", "primary_strategy": "direct", "confidence": 0.85},
		"action": {"skill": "echo", "parameters": {"text": "hi"}},
		"final_response": "Opening it now."
	}`}
	s := NewStack(client, nil, nil, echoRegistry(t))

	resp, err := s.Process(context.Background(), "open spotify", types.MemoryContext{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action == nil || resp.Action.Skill != "echo" {
		t.Errorf("action = %+v", resp.Action)
	}
	if resp.NeedsEscalation {
		t.Error("confident valid response should not escalate")
	}
}

func TestPickSpecialistsTriage(t *testing.T) {
	coding := pickSpecialists(Interpretation{Intent: IntentCoding, Sentiment: SentimentNeutral})
	if len(coding) < 2 || len(coding) > 4 {
		t.Errorf("coding specialists = %v", coding)
	}
	hasArchitect := false
	for _, n := range coding {
		if n == "Architect" {
			hasArchitect = true
		}
	}
	if !hasArchitect {
		t.Errorf("coding debate should include Architect: %v", coding)
	}

	frustrated := pickSpecialists(Interpretation{Intent: IntentConversation, Sentiment: SentimentFrustrated})
	if len(frustrated) > 4 {
		t.Errorf("too many specialists: %v", frustrated)
	}
}
