package llm

import (
	"testing"

	"aura/internal/types"
)

func TestDecodeStructuredClean(t *testing.T) {
	var lr types.LiteResponse
	raw := `{"final_response": "hello", "confidence": 0.9}`
	if err := DecodeStructured(raw, &lr); err != nil {
		t.Fatalf("DecodeStructured failed: %v", err)
	}
	if lr.FinalResponse != "hello" || lr.Confidence != 0.9 {
		t.Errorf("unexpected decode: %+v", lr)
	}
}

func TestDecodeStructuredFenced(t *testing.T) {
	var lr types.LiteResponse
	raw := "Here is the answer:\n```json\n{\"final_response\": \"ok\", \"confidence\": 0.8}\n```\nHope that helps!"
	if err := DecodeStructured(raw, &lr); err != nil {
		t.Fatalf("DecodeStructured failed on fenced output: %v", err)
	}
	if lr.FinalResponse != "ok" {
		t.Errorf("expected ok, got %q", lr.FinalResponse)
	}
}

func TestDecodeStructuredTrailingComma(t *testing.T) {
	var lr types.LiteResponse
	raw := `{"final_response": "fixed", "confidence": 0.7,}`
	if err := DecodeStructured(raw, &lr); err != nil {
		t.Fatalf("DecodeStructured failed on trailing comma: %v", err)
	}
	if lr.FinalResponse != "fixed" {
		t.Errorf("expected fixed, got %q", lr.FinalResponse)
	}
}

func TestDecodeStructuredEmbeddedChatter(t *testing.T) {
	var got map[string]interface{}
	raw := `Sure! The JSON you asked for is {"key": "value"} as requested.`
	if err := DecodeStructured(raw, &got); err != nil {
		t.Fatalf("DecodeStructured failed on embedded object: %v", err)
	}
	if got["key"] != "value" {
		t.Errorf("expected value, got %v", got["key"])
	}
}

func TestDecodeStructuredNoJSON(t *testing.T) {
	var lr types.LiteResponse
	if err := DecodeStructured("just some prose with no structure", &lr); err == nil {
		t.Error("expected error for prose-only input")
	}
}

func TestParseLiteFallback(t *testing.T) {
	lr, ok := ParseLite("I could not produce JSON, sorry.")
	if ok {
		t.Error("expected fallback path")
	}
	if lr.FinalResponse != "I could not produce JSON, sorry." {
		t.Errorf("fallback should carry raw text, got %q", lr.FinalResponse)
	}
	if lr.Confidence != fallbackConfidence {
		t.Errorf("fallback confidence = %v, want %v", lr.Confidence, fallbackConfidence)
	}
}

func TestParseFullFallbackNeverEmpty(t *testing.T) {
	resp, ok := ParseFull("plain text answer")
	if ok {
		t.Error("expected fallback path")
	}
	if resp.FinalResponse == "" {
		t.Error("fallback response must never be empty")
	}
	if resp.FinalThought.Confidence != fallbackConfidence {
		t.Errorf("fallback confidence = %v", resp.FinalThought.Confidence)
	}
}

func TestExtractBracesNested(t *testing.T) {
	raw := `prefix {"a": {"b": "c}d"}, "e": 1} suffix`
	got := extractBraces(raw)
	want := `{"a": {"b": "c}d"}, "e": 1}`
	if got != want {
		t.Errorf("extractBraces = %q, want %q", got, want)
	}
}

func TestRepairJSONNewlineInString(t *testing.T) {
	raw := "{\"text\": \"line one\nline two\"}"
	var got map[string]string
	if err := DecodeStructured(raw, &got); err != nil {
		t.Fatalf("DecodeStructured failed on raw newline: %v", err)
	}
	if got["text"] != "line one\nline two" {
		t.Errorf("unexpected text: %q", got["text"])
	}
}

func TestRepairJSONUnterminated(t *testing.T) {
	raw := `{"final_response": "cut off`
	var lr types.LiteResponse
	if err := DecodeStructured(raw, &lr); err != nil {
		t.Fatalf("DecodeStructured failed on truncated object: %v", err)
	}
	if lr.FinalResponse != "cut off" {
		t.Errorf("expected recovered text, got %q", lr.FinalResponse)
	}
}
