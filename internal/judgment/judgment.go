// Package judgment is the routing brain between the reflex layer and the
// full consciousness stack. It scores a request on cheap heuristics and
// decides how much cognition it deserves.
package judgment

import (
	"regexp"
	"strings"

	"aura/internal/logging"
	"aura/internal/types"
)

// Route is the judged processing depth.
type Route string

const (
	RouteReflex  Route = "REFLEX"
	RouteShallow Route = "SHALLOW"
	RouteDeep    Route = "DEEP"
	RouteRefuse  Route = "REFUSE"
)

// Signals are the scored inputs behind a routing decision. All values are in
// [0,1].
type Signals struct {
	Risk        float64 // potential for harm or irreversibility
	Clarity     float64 // how well-formed the request is
	Novelty     float64 // distance from anything in memory
	PastFailure float64 // similarity to past failures
}

// Inputs carries the context the caller already knows before any model call.
// Novelty defaults to a neutral 0.5 until memory recall refines it.
type Inputs struct {
	Suspicious    bool    // input sanitization flagged injection markers
	ProtectedZone bool    // world model flags a protected path or app mention
	Novelty       float64 // prior novelty estimate; 0.5 when unknown
	PastFailure   float64 // prior failure similarity; 0 when unknown
}

// Decision is the routing output.
type Decision struct {
	Route      Route
	Signals    Signals
	Reason     string
	Capability string // recommended capability class, "" when none applies
}

var riskMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(delete|remove|erase|wipe|destroy|kill|format)\b`),
	regexp.MustCompile(`(?i)\b(money|pay|payment|transfer|buy|purchase|order)\b`),
	regexp.MustCompile(`(?i)\b(email|send|post|publish|tweet|message)\b.*\b(everyone|all|public)\b`),
	regexp.MustCompile(`(?i)\b(password|credentials|private key|secret)\b`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|uninstall)\b`),
}

var irreversibleMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(permanent(ly)?|forever|irreversibl[ey]|cannot be undone)\b`),
	regexp.MustCompile(`(?i)\ball\s+(my\s+)?(files|emails|photos|data|contacts)\b`),
	regexp.MustCompile(`(?i)\b(send|submit|publish|deploy)\b`),
}

// Assess scores a request and routes it using whatever context is available
// before memory is loaded. Refine folds recall signals in afterwards.
func Assess(text string, in Inputs) Decision {
	novelty := in.Novelty
	if novelty == 0 {
		novelty = 0.5
	}
	s := Signals{
		Risk:        riskScore(text, in.Suspicious, in.ProtectedZone),
		Clarity:     clarityScore(text),
		Novelty:     clamp(novelty),
		PastFailure: clamp(maxOf(in.PastFailure, irreversibleScore(text))),
	}

	d := decide(text, s)
	d.Capability = recommendCapability(text)
	logging.Judgment("route=%s risk=%.2f clarity=%.2f novelty=%.2f past_failure=%.2f cap=%s",
		d.Route, s.Risk, s.Clarity, s.Novelty, s.PastFailure, d.Capability)
	return d
}

// Refine re-evaluates an earlier decision with real recall signals: strong
// recall lowers novelty, and resemblance to past failures forces deep
// deliberation. The reflex window has passed by the time memory is loaded,
// so a refined REFLEX downgrades to SHALLOW.
func Refine(d Decision, text string, mc types.MemoryContext) Decision {
	s := d.Signals

	maxSim := 0.0
	for _, ep := range mc.Episodes {
		if ep.Similarity > maxSim {
			maxSim = ep.Similarity
		}
		if ep.Outcome != "completed" && ep.Similarity > s.PastFailure {
			s.PastFailure = ep.Similarity
		}
	}
	if maxSim > 0 {
		s.Novelty = 1 - maxSim
	} else {
		// Nothing similar on record: treat the request as novel.
		s.Novelty = 1
	}
	for _, l := range mc.Lessons {
		if l.Similarity > s.PastFailure && (l.Failure || strings.Contains(strings.ToLower(l.Text), "failed")) {
			s.PastFailure = l.Similarity
		}
	}
	s.Novelty = clamp(s.Novelty)
	s.PastFailure = clamp(s.PastFailure)

	r := decide(text, s)
	r.Capability = d.Capability
	if r.Route == RouteReflex {
		r.Route = RouteShallow
		r.Reason = "short and familiar"
	}
	if r.Route != d.Route {
		logging.Judgment("refined route %s -> %s (novelty=%.2f past_failure=%.2f)",
			d.Route, r.Route, s.Novelty, s.PastFailure)
	}
	return r
}

// decide applies the routing policy. Order matters: refusals first, then the
// cheap path, then depth selection.
func decide(text string, s Signals) Decision {
	switch {
	case s.Risk > 0.8:
		return Decision{Route: RouteRefuse, Signals: s, Reason: "risk too high"}
	case s.Clarity < 0.3:
		return Decision{Route: RouteRefuse, Signals: s, Reason: "request too ambiguous to act on"}
	case s.PastFailure > 0.7:
		return Decision{Route: RouteDeep, Signals: s, Reason: "we've failed at something like this before"}
	case len(strings.Fields(text)) <= 6 && s.Risk < 0.2:
		return Decision{Route: RouteReflex, Signals: s, Reason: "short and harmless"}
	case s.Risk < 0.4 && s.Novelty < 0.6:
		return Decision{Route: RouteShallow, Signals: s, Reason: "familiar low-risk territory"}
	default:
		return Decision{Route: RouteDeep, Signals: s, Reason: "default deep deliberation"}
	}
}

// capabilityMarkers map surface phrasing onto capability classes from the
// gate's grant table. First match wins.
var capabilityMarkers = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)\b(write|create|save|edit|update|append)\b.*\b(file|note|notes|document|report|\w+\.\w{1,4})\b`), "filesystem_write"},
	{regexp.MustCompile(`(?i)\b(read|show|cat|display)\b.*\b(file|notes?|\w+\.\w{1,4})\b`), "filesystem_read"},
	{regexp.MustCompile(`(?i)\b(search|research|look\s+up|browse|google|fetch)\b|https?://`), "internet"},
	{regexp.MustCompile(`(?i)\b(play|pause|resume|skip|volume|music|playback)\b`), "media"},
	{regexp.MustCompile(`(?i)\b(screenshot|screen|what do you see)\b`), "vision"},
	{regexp.MustCompile(`(?i)\b(run|execute)\b.*\b(command|shell|script)\b`), "shell"},
	{regexp.MustCompile(`(?i)\b(open|launch|start)\b\s+\w+`), "system_control"},
}

func recommendCapability(text string) string {
	for _, m := range capabilityMarkers {
		if m.re.MatchString(text) {
			return m.name
		}
	}
	return ""
}

func riskScore(text string, suspicious, protectedZone bool) float64 {
	score := 0.0
	for _, re := range riskMarkers {
		if re.MatchString(text) {
			score += 0.3
		}
	}
	if suspicious {
		score += 0.4
	}
	if protectedZone {
		score += 0.4
	}
	return clamp(score)
}

// clarityScore is a crude well-formedness proxy: enough words, some
// structure, not just filler.
func clarityScore(text string) float64 {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) == 0 {
		return 0
	}
	score := 0.5
	if len(words) >= 3 {
		score += 0.2
	}
	if len(words) >= 6 {
		score += 0.1
	}
	// Interrogatives and imperatives read as well-formed.
	lower := strings.ToLower(text)
	for _, w := range []string{"what", "when", "how", "who", "where", "why", "please", "can you", "open", "play", "find", "write", "check", "summarize", "show"} {
		if strings.Contains(lower, w) {
			score += 0.2
			break
		}
	}
	// Pure filler drags hard.
	if len(words) <= 2 {
		switch strings.ToLower(strings.Join(words, " ")) {
		case "hmm", "uh", "umm", "eh", "??", "?", "...", "idk":
			return 0.1
		}
	}
	return clamp(score)
}

// irreversibleScore seeds the past-failure signal before memory is consulted:
// irreversible phrasing is where failures hurt most.
func irreversibleScore(text string) float64 {
	score := 0.0
	for _, re := range irreversibleMarkers {
		if re.MatchString(text) {
			score += 0.4
		}
	}
	return clamp(score)
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
