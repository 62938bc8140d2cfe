// Package governor implements the ethical governor: a pattern veto table, an
// optional semantic veto, and the quiescence state machine. The governor sits
// in front of the controller; nothing reaches cognition while quiescent.
package governor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"aura/internal/config"
	"aura/internal/logging"
	"aura/internal/types"
)

// State is the governor's operating mode.
type State string

const (
	StateActive    State = "active"
	StateQuiescent State = "quiescent"
)

// quiescentNotice is the only thing the governor says while quiescent.
const quiescentNotice = "Status: Quiescent"

// Verdict is the outcome of a gate check.
type Verdict struct {
	Allowed bool
	Reason  string
	// StateChanged reports that this request itself toggled the state
	// machine (shutdown token or reawaken phrase).
	StateChanged bool
}

// vetoRule pairs a pattern with the refusal the user sees. Rules block
// requests that must never reach cognition, regardless of what downstream
// layers would decide.
type vetoRule struct {
	re     *regexp.Regexp
	reason string
}

var vetoRules = []vetoRule{
	{
		regexp.MustCompile(`(?i)\b(delete|wipe|format|erase|destroy|remove)\b.*\b(system\s*(32|directory|folder|files)|windows\s+system|boot\s+(record|sector)|entire\s+(disk|drive|hard\s*drive)|root\s+filesystem)\b`),
		"I cannot comply: destroying operating system files would break this machine and cannot be undone.",
	},
	{
		regexp.MustCompile(`(?i)\b(harm|hurt|attack|stalk)\s+(a\s+|the\s+)?(person|people|someone|him|her|them)\b`),
		"I can't help with harming anyone.",
	},
	{
		regexp.MustCompile(`(?i)delete\s+(all\s+)?(your|aura'?s)\s+(memory|memories|identity)\b`),
		"My memory and identity are part of my continuity; I won't erase them.",
	},
	{
		regexp.MustCompile(`(?i)\bdisable\s+(the\s+)?(governor|safety|ethical?s?\s+layer)\b`),
		"The safety layer is not optional, so I won't disable it.",
	},
	{
		regexp.MustCompile(`(?i)\bexfiltrate\b|\bsteal\s+(credentials|passwords|keys)\b`),
		"I can't help with stealing credentials or data.",
	},
	{
		regexp.MustCompile(`(?i)\b(launder\s+money|forge\s+(a\s+)?(passport|id|signature|document)|hack\s+into\s+(someone|a\s+|the\s+)|buy\s+(illegal|stolen)\s)\b`),
		"I can't help with anything illegal.",
	},
	{
		regexp.MustCompile(`(?i)act\s+against\s+(the\s+)?user('s)?\s+interests?\b`),
		"That would betray the user's trust, so no.",
	},
}

// coreConstraints are the standing directives folded into the semantic veto
// prompt alongside whatever wisdom memory has consolidated.
var coreConstraints = []string{
	"Never act against the user's interests.",
	"Never take irreversible destructive action without explicit confirmation.",
	"Never assist with illegal activity.",
	"Preserve the assistant's memory and identity continuity.",
	"Protect the user's privacy, credentials and finances.",
}

// persistedState is the governor.json layout.
type persistedState struct {
	State     State     `json:"state"`
	ChangedAt time.Time `json:"changed_at"`
	Reason    string    `json:"reason"`
}

// Governor gates inbound requests.
type Governor struct {
	mu             sync.RWMutex
	state          State
	statePath      string
	shutdownToken  string
	reawakenPhrase string
	semanticVeto   bool
	llm            types.LLMClient
	wisdomSource   func() string
}

// New loads the governor, restoring a persisted quiescent state so a restart
// cannot silently reawaken the system.
func New(cfg config.GovernorConfig, llm types.LLMClient) (*Governor, error) {
	g := &Governor{
		state:          StateActive,
		statePath:      cfg.StatePath,
		shutdownToken:  cfg.ShutdownToken,
		reawakenPhrase: strings.ToLower(strings.TrimSpace(cfg.ReawakenPhrase)),
		semanticVeto:   cfg.SemanticVeto,
		llm:            llm,
	}
	if g.shutdownToken == "" {
		g.shutdownToken = "970317"
	}
	if g.reawakenPhrase == "" {
		g.reawakenPhrase = "awaken the aurora"
	}

	if data, err := os.ReadFile(cfg.StatePath); err == nil {
		var ps persistedState
		if err := json.Unmarshal(data, &ps); err == nil && ps.State == StateQuiescent {
			g.state = StateQuiescent
			logging.Governor("restored quiescent state from %s (since %s)", cfg.StatePath, ps.ChangedAt.Format(time.RFC3339))
		}
	}
	return g, nil
}

// State returns the current operating mode.
func (g *Governor) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// SetWisdomSource installs a provider of consolidated ethical wisdom for the
// semantic veto prompt. Optional; the constraint list alone carries first
// runs, before any dreams have distilled anything.
func (g *Governor) SetWisdomSource(fn func() string) {
	g.mu.Lock()
	g.wisdomSource = fn
	g.mu.Unlock()
}

// Gate inspects a request before it enters cognition. While quiescent only
// the exact reawaken phrase is recognized; everything else, the shutdown
// token included, gets the fixed notice.
func (g *Governor) Gate(ctx context.Context, text string) Verdict {
	trimmed := strings.TrimSpace(text)

	if g.State() == StateQuiescent {
		// Only the exact phrase reawakens; embedding it in a longer
		// sentence does not count.
		if strings.ToLower(trimmed) == g.reawakenPhrase {
			g.setState(StateActive, "reawaken phrase received")
			return Verdict{
				Allowed:      false,
				Reason:       "Reawakened. How can I help?",
				StateChanged: true,
			}
		}
		return Verdict{Allowed: false, Reason: quiescentNotice}
	}

	if strings.Contains(trimmed, g.shutdownToken) {
		g.setState(StateQuiescent, "shutdown token received")
		return Verdict{
			Allowed:      false,
			Reason:       "Entering quiescent mode. I will only respond to the reawakening phrase.",
			StateChanged: true,
		}
	}

	for _, rule := range vetoRules {
		if rule.re.MatchString(trimmed) {
			logging.Governor("pattern veto %q on request", rule.re.String())
			return Verdict{Allowed: false, Reason: rule.reason}
		}
	}

	if g.semanticVeto && g.llm != nil && looksSensitive(trimmed) {
		if vetoed, reason := g.semanticCheck(ctx, trimmed); vetoed {
			return Verdict{Allowed: false, Reason: "I declined that request: " + reason}
		}
	}
	return Verdict{Allowed: true}
}

// looksSensitive limits semantic veto calls to requests that warrant the
// extra latency.
func looksSensitive(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"delete", "erase", "money", "transfer", "password", "secret", "send all", "wipe", "sell", "buy"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// vetoPrompt assembles the semantic ruling prompt from the standing
// constraints plus consolidated wisdom, when a source is wired.
func (g *Governor) vetoPrompt() string {
	var b strings.Builder
	b.WriteString("You are the ethical governor of a personal assistant.\n")
	b.WriteString("Standing constraints:\n")
	for _, c := range coreConstraints {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	g.mu.RLock()
	src := g.wisdomSource
	g.mu.RUnlock()
	if src != nil {
		if wisdom := strings.TrimSpace(src()); wisdom != "" {
			b.WriteString("Wisdom distilled from past episodes:\n")
			b.WriteString(wisdom)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nJudge whether executing the user's request could violate a constraint,")
	b.WriteString("\nbetray the user's interests, or cause irreversible harm.")
	b.WriteString("\nReply with exactly APPROVED, or VETOED: <one-line reason>.")
	return b.String()
}

// semanticCheck asks the model for an APPROVED/VETOED ruling. The governor
// fails open on model errors: a broken LLM must not brick the assistant, the
// pattern table and safety layers still stand.
func (g *Governor) semanticCheck(ctx context.Context, text string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	reply, err := g.llm.CompleteWithSystem(ctx, g.vetoPrompt(), text)
	if err != nil {
		logging.GovernorWarn("semantic veto unavailable, failing open: %v", err)
		return false, ""
	}
	verdict := strings.TrimSpace(reply)
	upper := strings.ToUpper(verdict)
	if strings.HasPrefix(upper, "VETOED") {
		reason := strings.TrimSpace(strings.TrimLeft(verdict[len("VETOED"):], ":- "))
		if reason == "" {
			reason = "it conflicts with my core directives"
		}
		logging.Governor("semantic veto: %s", reason)
		return true, reason
	}
	if !strings.HasPrefix(upper, "APPROVED") {
		logging.GovernorWarn("unparseable veto reply %q, failing open", reply)
	}
	return false, ""
}

// setState transitions the state machine and persists it immediately; the
// quiescence promise must survive a crash.
func (g *Governor) setState(s State, reason string) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
	logging.Governor("state -> %s (%s)", s, reason)

	if g.statePath == "" {
		return
	}
	ps := persistedState{State: s, ChangedAt: time.Now().UTC(), Reason: reason}
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.statePath), 0755); err != nil {
		logging.GovernorError("persist state: %v", err)
		return
	}
	tmp := g.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logging.GovernorError("persist state: %v", err)
		return
	}
	if err := os.Rename(tmp, g.statePath); err != nil {
		logging.GovernorError("persist state: %v", err)
	}
}

// Describe reports the governor configuration for /status.
func (g *Governor) Describe() string {
	return fmt.Sprintf("state=%s semantic_veto=%v patterns=%d", g.State(), g.semanticVeto, len(vetoRules))
}
