package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"aura/internal/logging"
	"aura/internal/types"
)

// Local models routinely wrap JSON in markdown fences, prepend chatter, or
// emit almost-JSON with trailing commas. The repair chain recovers structure
// in stages and only falls back to treating the reply as free text when
// nothing parseable remains.

// fallbackConfidence is assigned when a reply could not be parsed as JSON and
// the raw text is promoted to the final response.
const fallbackConfidence = 0.4

// DecodeStructured unmarshals raw model output into v, applying the repair
// chain. Returns an error only when no stage produced valid JSON.
func DecodeStructured(raw string, v interface{}) error {
	candidates := []string{
		raw,
		stripFences(raw),
		extractBraces(raw),
		repairJSON(extractBraces(stripFences(raw))),
	}
	var lastErr error
	for i, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err != nil {
			lastErr = err
			continue
		}
		if i > 0 {
			logging.APIDebug("[Parse] structured output recovered at stage %d", i)
		}
		return nil
	}
	return fmt.Errorf("no parseable JSON in model output: %w", lastErr)
}

// ParseLite decodes a 3-field lite reply. On failure the raw text becomes the
// final response at fallback confidence; ok reports whether real JSON parsed.
func ParseLite(raw string) (lr types.LiteResponse, ok bool) {
	if err := DecodeStructured(raw, &lr); err == nil && lr.FinalResponse != "" {
		return lr, true
	}
	return types.LiteResponse{
		FinalResponse: strings.TrimSpace(raw),
		Confidence:    fallbackConfidence,
	}, false
}

// ParseFull decodes a full structured decision. On failure the raw text
// becomes the final response at fallback confidence.
func ParseFull(raw string) (resp *types.Response, ok bool) {
	var r types.Response
	if err := DecodeStructured(raw, &r); err == nil && r.FinalResponse != "" {
		return &r, true
	}
	return &types.Response{
		FinalThought: types.Thought{
			IntentSummary:   "unstructured reply",
			PrimaryStrategy: "direct",
			Confidence:      fallbackConfidence,
		},
		FinalResponse: strings.TrimSpace(raw),
	}, false
}

// stripFences removes a markdown code fence wrapper if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "JSON" || first == "" {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// extractBraces returns the outermost {...} span, respecting strings.
func extractBraces(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unterminated object; return the span anyway for the repair stage.
	return s[start:]
}

// repairJSON patches the most common local-model JSON defects: trailing
// commas, raw newlines inside strings, and a missing closing brace.
func repairJSON(s string) string {
	if s == "" {
		return s
	}
	var out strings.Builder
	out.Grow(len(s) + 4)
	inString := false
	escaped := false
	depth := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				out.WriteByte(ch)
			case ch == '\\':
				escaped = true
				out.WriteByte(ch)
			case ch == '"':
				inString = false
				out.WriteByte(ch)
			case ch == '\n':
				out.WriteString("\\n")
			case ch == '\t':
				out.WriteString("\\t")
			case ch == '\r':
				// drop
			default:
				out.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
			out.WriteByte(ch)
		case '{', '[':
			depth++
			out.WriteByte(ch)
		case '}', ']':
			depth--
			out.WriteByte(ch)
		case ',':
			// Skip trailing commas before a closer.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			out.WriteByte(ch)
		default:
			out.WriteByte(ch)
		}
	}
	if inString {
		out.WriteByte('"')
	}
	for ; depth > 0; depth-- {
		out.WriteByte('}')
	}
	return out.String()
}
