package conscious

import (
	"regexp"
	"strings"

	"aura/internal/world"
)

// Intent is the coarse classification of what the user wants.
type Intent string

const (
	IntentMediaControl  Intent = "media_control"
	IntentSystemCommand Intent = "system_command"
	IntentCoding        Intent = "coding"
	IntentCorrection    Intent = "correction"
	IntentResearch      Intent = "research"
	IntentQuestion      Intent = "question"
	IntentConversation  Intent = "conversation"
)

// Sentiment is the detected emotional register of the request.
type Sentiment string

const (
	SentimentUrgent     Sentiment = "urgent"
	SentimentFrustrated Sentiment = "frustrated"
	SentimentCurious    Sentiment = "curious"
	SentimentNeutral    Sentiment = "neutral"
)

// Entities are the concrete references extracted from the text.
type Entities struct {
	URLs    []string
	Paths   []string
	Quoted  []string
	Numbers []string
}

// Interpretation is the output of layer two.
type Interpretation struct {
	Entities     Entities
	Intent       Intent
	Sentiment    Sentiment
	Capabilities []string // recommended capability names
}

var (
	urlRe    = regexp.MustCompile(`https?://[^\s<>"]+`)
	pathRe   = regexp.MustCompile(`(?:~|\.{1,2})?/[\w.\-/]+|\b[\w.\-]+\.(?:go|py|js|ts|md|txt|json|yaml|yml|toml|csv|png|jpg|pdf)\b`)
	quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	numRe    = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

var intentKeywords = map[Intent][]string{
	IntentMediaControl:  {"play", "pause", "skip", "volume", "music", "song", "track", "mute"},
	IntentSystemCommand: {"open", "launch", "start", "close", "screenshot", "restart", "shutdown"},
	IntentCoding:        {"code", "function", "bug", "compile", "refactor", "test", "implement", "debug", "script"},
	IntentCorrection:    {"no,", "wrong", "not what", "actually", "i meant", "instead", "that's not"},
	IntentResearch:      {"research", "find out", "look up", "search", "summarize", "compare", "investigate"},
}

// Interpret is layer two: entity extraction, intent classification,
// sentiment detection, and capability recommendation. The world model
// resolves semantic path references like "my notes".
func Interpret(text string, wm *world.Model) Interpretation {
	lower := strings.ToLower(text)

	in := Interpretation{
		Entities: Entities{
			URLs:    urlRe.FindAllString(text, -1),
			Paths:   pathRe.FindAllString(text, -1),
			Numbers: numRe.FindAllString(text, -1),
		},
		Intent:    classifyIntent(lower),
		Sentiment: detectSentiment(lower),
	}

	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			in.Entities.Quoted = append(in.Entities.Quoted, m[1])
		} else {
			in.Entities.Quoted = append(in.Entities.Quoted, m[2])
		}
	}

	if wm != nil {
		for i, p := range in.Entities.Paths {
			in.Entities.Paths[i] = wm.ResolvePath(p)
		}
	}

	in.Capabilities = recommendCapabilities(in, lower)
	return in
}

func classifyIntent(lower string) Intent {
	bestIntent := IntentConversation
	bestHits := 0
	for intent, words := range intentKeywords {
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			bestIntent, bestHits = intent, hits
		}
	}
	if bestHits == 0 {
		if strings.HasSuffix(strings.TrimSpace(lower), "?") || hasInterrogativePrefix(lower) {
			return IntentQuestion
		}
		return IntentConversation
	}
	return bestIntent
}

func hasInterrogativePrefix(lower string) bool {
	for _, w := range []string{"what", "when", "where", "who", "why", "how", "is ", "are ", "can ", "do ", "does "} {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}

func detectSentiment(lower string) Sentiment {
	switch {
	case containsAny(lower, "asap", "urgent", "right now", "immediately", "quick", "hurry"):
		return SentimentUrgent
	case containsAny(lower, "ugh", "again", "still broken", "why won't", "frustrat", "annoying", "come on"):
		return SentimentFrustrated
	case containsAny(lower, "wonder", "curious", "interesting", "what if", "how does"):
		return SentimentCurious
	default:
		return SentimentNeutral
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// recommendCapabilities maps the interpretation onto capability names the
// deliberation layer should have available.
func recommendCapabilities(in Interpretation, lower string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	switch in.Intent {
	case IntentMediaControl:
		add("media")
	case IntentSystemCommand:
		add("system_control")
	case IntentCoding:
		add("filesystem_read")
		add("filesystem_write")
		add("shell")
	case IntentResearch:
		add("internet")
	}
	if len(in.Entities.URLs) > 0 {
		add("internet")
	}
	if len(in.Entities.Paths) > 0 {
		add("filesystem_read")
	}
	if containsAny(lower, "screenshot", "screen", "what do you see") {
		add("vision")
	}

	return out
}
