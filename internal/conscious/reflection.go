package conscious

import (
	"strings"

	"aura/internal/logging"
	"aura/internal/types"
)

// roboticMarkers are passive or canned phrasings that read as a bot, not a
// companion. Their presence drops confidence and forces escalation from the
// lite path.
var roboticMarkers = []string{
	"as an ai",
	"i am unable to",
	"i cannot assist",
	"i'm just a",
	"my programming",
	"i do not have the ability",
	"as a language model",
}

// hallucinationMarkers signal fabricated personal-data claims.
var hallucinationMarkers = []string{
	"as you mentioned earlier",
	"as we discussed before",
	"according to your calendar",
	"your usual order",
	"like you always do",
}

// reflect is layer four: audit the deliberation output. It mutates the
// response in place and returns the audit findings.
func (s *Stack) reflect(resp *types.Response, memCtx types.MemoryContext) []string {
	var issues []string

	// An action naming a skill we do not have gets nullified; the response
	// text must acknowledge the pivot rather than pretend.
	if resp.Action != nil && s.registry != nil && !s.registry.Has(resp.Action.Skill) {
		issues = append(issues, "unknown skill "+resp.Action.Skill)
		logging.Conscious("reflection nullified unknown skill %q", resp.Action.Skill)
		resp.Action = nil
		if resp.FinalResponse == "" {
			resp.FinalResponse = "I considered using a capability I don't actually have. Let me answer directly instead."
		} else {
			resp.FinalResponse += "\n\n(I reconsidered an action I'm not equipped for.)"
		}
	}

	lower := strings.ToLower(resp.FinalResponse)
	for _, m := range roboticMarkers {
		if strings.Contains(lower, m) {
			issues = append(issues, "robotic phrasing: "+m)
			resp.FinalThought.Confidence *= 0.6
			break
		}
	}

	for _, m := range hallucinationMarkers {
		if strings.Contains(lower, m) && !traceSupports(memCtx, m) {
			issues = append(issues, "possible fabricated memory: "+m)
			resp.NeedsEscalation = true
			break
		}
	}

	if resp.FinalThought.Confidence < 0.3 {
		resp.NeedsEscalation = true
	}
	if len(issues) >= 2 && resp.FinalThought.Confidence < 0.6 {
		resp.NeedsEscalation = true
	}

	// The contract: FinalResponse is never empty after reflection.
	if strings.TrimSpace(resp.FinalResponse) == "" {
		if resp.Action != nil {
			resp.FinalResponse = "Working on it."
		} else {
			resp.FinalResponse = "I don't have a good answer yet. Can you give me a bit more to go on?"
			resp.NeedsEscalation = true
		}
	}

	return issues
}

// traceSupports reports whether the working trace actually contains prior
// conversation, which would legitimize a back-reference.
func traceSupports(memCtx types.MemoryContext, marker string) bool {
	if strings.Contains(marker, "calendar") || strings.Contains(marker, "order") {
		return false // no calendar or ordering integration exists
	}
	return len(memCtx.WorkingTrace) > 2
}
