package llm

import (
	"context"
	"testing"

	"aura/internal/types"
)

// fakeClient records model switches without talking to any backend.
type fakeClient struct {
	model string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}
func (f *fakeClient) CompleteWithSystem(ctx context.Context, s, u string) (string, error) {
	return "", nil
}
func (f *fakeClient) CompleteStructured(ctx context.Context, s, u string, schema map[string]interface{}, img string) (string, error) {
	return "", nil
}
func (f *fakeClient) CompleteWithTools(ctx context.Context, s, u string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return &types.LLMToolResponse{}, nil
}
func (f *fakeClient) SetModel(m string) { f.model = m }
func (f *fakeClient) GetModel() string  { return f.model }

func TestRouterSelectsByCapability(t *testing.T) {
	fc := &fakeClient{}
	r := NewRouter(fc, []string{"qwen2.5:7b"})
	r.Register(types.ModelProfile{
		Name:         "llava:13b",
		Capabilities: []string{"general", "vision"},
		TrustScore:   0.7,
		Available:    true,
	})

	got := r.Select([]string{"vision"})
	if got != "llava:13b" {
		t.Errorf("Select(vision) = %s, want llava:13b", got)
	}
	if fc.model != "llava:13b" {
		t.Errorf("client not switched, model = %s", fc.model)
	}
}

func TestRouterUseUnknownModel(t *testing.T) {
	r := NewRouter(&fakeClient{}, []string{"qwen2.5:7b"})
	if err := r.Use("nonexistent"); err == nil {
		t.Error("expected error for unknown model")
	}
	if err := r.Use("qwen2.5:7b"); err != nil {
		t.Errorf("Use known model failed: %v", err)
	}
}

func TestRouterTrustDecaysOnFailure(t *testing.T) {
	r := NewRouter(&fakeClient{}, []string{"a", "b"})
	before := r.Scorecard()
	for _, p := range before {
		if p.TrustScore != 0.7 {
			t.Fatalf("expected neutral starting trust, got %v", p.TrustScore)
		}
	}

	for i := 0; i < 5; i++ {
		r.RecordResult("a", false, 2.0)
	}
	r.RecordResult("b", true, 0.5)

	card := r.Scorecard()
	if card[0].Name != "b" {
		t.Errorf("expected b to lead scorecard, got %s", card[0].Name)
	}
	var a types.ModelProfile
	for _, p := range card {
		if p.Name == "a" {
			a = p
		}
	}
	if a.TrustScore >= 0.7 {
		t.Errorf("trust should have decayed, got %v", a.TrustScore)
	}
	if a.ErrorCount != 5 {
		t.Errorf("error count = %d, want 5", a.ErrorCount)
	}
}

func TestRouterQuarantineAndRestore(t *testing.T) {
	r := NewRouter(&fakeClient{}, []string{"flaky", "steady"})
	for i := 0; i < 12; i++ {
		r.RecordResult("flaky", false, 1.0)
	}

	// Quarantined model must never be selected.
	if got := r.Select([]string{"general"}); got == "flaky" {
		t.Error("quarantined model was selected")
	}

	r.Restore("flaky")
	found := false
	for _, p := range r.Scorecard() {
		if p.Name == "flaky" && p.Available && p.ErrorCount == 0 {
			found = true
		}
	}
	if !found {
		t.Error("Restore did not reset availability and errors")
	}
}

func TestRouterSelectKeepsActiveWhenNoCandidates(t *testing.T) {
	r := NewRouter(&fakeClient{}, []string{"only"})
	for i := 0; i < 12; i++ {
		r.RecordResult("only", false, 1.0)
	}
	if got := r.Select([]string{"general"}); got != "only" {
		t.Errorf("with no viable candidate the active model should be kept, got %s", got)
	}
}
