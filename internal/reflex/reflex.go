// Package reflex is the zero-LLM fast path: an exact-text response cache,
// learned stimulus->action patterns installed by the evolution engine, and a
// static command table. A reflex hit answers in microseconds and never
// touches a model.
package reflex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aura/internal/logging"
	"aura/internal/persist"
)

// promotion thresholds: the metacognition layer proposes a reflex once it has
// seen a stimulus->action pair this many times at or above this mean
// confidence.
const (
	PromoteCount      = 3
	PromoteConfidence = 0.7
)

// cacheCap bounds the exact-response cache; the least recently used entry
// leaves first. Use ticks are runtime-only, a restart resets recency.
const cacheCap = 256

// LearnedPattern maps a normalized stimulus to a skill invocation. Promotion
// decisions live upstream; by the time a pattern lands here it has already
// earned its place.
type LearnedPattern struct {
	Stimulus  string            `json:"stimulus"`
	Skill     string            `json:"skill"`
	Params    map[string]string `json:"params,omitempty"`
	LearnedAt time.Time         `json:"learned_at"`
}

// commandRule is one static table entry. Named capture groups substitute into
// the response template as {name}.
type commandRule struct {
	re       *regexp.Regexp
	template string
	skill    string
}

// staticRules answer trivial utterances without any learning.
var staticRules = []commandRule{
	{regexp.MustCompile(`(?i)^(hi|hello|hey)[.!]?$`), "Hello! What can I do for you?", ""},
	{regexp.MustCompile(`(?i)^(thanks|thank you)[.!]?$`), "Anytime.", ""},
	{regexp.MustCompile(`(?i)^(bye|goodbye|good night)[.!]?$`), "Goodbye!", ""},
	{regexp.MustCompile(`(?i)^what('?s| is) the time[?]?$`), "", "time.now"},
	{regexp.MustCompile(`(?i)^open (?P<app>[\w .-]+)$`), "Opening {app}.", "system.open_app"},
	{regexp.MustCompile(`(?i)^search (?:for )?(?P<query>.+)$`), "", "web.search"},
	{regexp.MustCompile(`(?i)^(?P<action>pause|stop) (the )?(music|playback)[.!]?$`), "Pausing playback.", "media.control"},
	{regexp.MustCompile(`(?i)^(?P<action>play|resume) (the )?(music|playback)[.!]?$`), "Resuming playback.", "media.control"},
	{regexp.MustCompile(`(?i)^volume (?P<action>up|down)[.!]?$`), "Volume {action}.", "media.control"},
	{regexp.MustCompile(`(?i)^(take a )?screenshot[.!]?$`), "", "system.screenshot"},
}

// Hit is a reflex match. Cache hits carry a finished Response; learned hits
// carry the Skill and Params to fire; static hits may carry both.
type Hit struct {
	Response string
	Skill    string            // optional skill to fire
	Params   map[string]string // learned params or named groups from the static table
	Source   string            // "cache", "learned", "static"
}

// Layer holds the three reflex tiers and persists learned state.
type Layer struct {
	mu       sync.RWMutex
	path     string
	cache    map[string]string          // exact stimulus text -> response
	seen     map[string]int64           // cache key -> last-use tick
	seq      int64                      // monotonic use tick, guarded by mu
	patterns map[string]*LearnedPattern // normalized stimulus -> action
	debounce *persist.Debouncer

	hits   atomic.Int64
	misses atomic.Int64
}

// reflexFile is the on-disk layout.
type reflexFile struct {
	Cache    map[string]string          `json:"cache"`
	Patterns map[string]*LearnedPattern `json:"patterns"`
}

// Load reads the reflex state, starting empty if missing or corrupt.
func Load(path string) (*Layer, error) {
	l := &Layer{
		path:     path,
		cache:    map[string]string{},
		seen:     map[string]int64{},
		patterns: map[string]*LearnedPattern{},
	}
	l.debounce = persist.New(l.save, 2*time.Second, 10*time.Second)
	l.debounce.OnError(func(err error) {
		logging.ReflexError("debounced save failed: %v", err)
	})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read reflexes %s: %w", path, err)
	}
	var f reflexFile
	if err := json.Unmarshal(data, &f); err != nil {
		aside := path + ".corrupt"
		os.Rename(path, aside)
		logging.ReflexError("corrupt reflex file moved to %s", aside)
		return l, nil
	}
	if f.Cache != nil {
		l.cache = f.Cache
	}
	if f.Patterns != nil {
		l.patterns = f.Patterns
	}
	l.mu.Lock()
	for k := range l.cache {
		l.seq++
		l.seen[k] = l.seq
	}
	l.evictOverLocked()
	l.mu.Unlock()
	logging.Reflex("loaded %d cached, %d learned patterns", len(l.cache), len(l.patterns))
	return l, nil
}

// normalize folds a stimulus for pattern matching: lowercased, whitespace
// runs collapsed to single spaces.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Match checks the tiers in order: exact cache, learned patterns, static
// table. Returns nil on miss.
func (l *Layer) Match(text string) *Hit {
	exact := strings.TrimSpace(text)

	// Write lock: a cache hit refreshes the entry's use tick.
	l.mu.Lock()
	if resp, ok := l.cache[exact]; ok {
		l.seq++
		l.seen[exact] = l.seq
		l.mu.Unlock()
		l.hits.Add(1)
		logging.ReflexDebug("cache hit for %q", exact)
		return &Hit{Response: resp, Source: "cache"}
	}
	if p, ok := l.patterns[normalize(text)]; ok && p.Skill != "" {
		l.mu.Unlock()
		l.hits.Add(1)
		logging.ReflexDebug("learned hit %q -> %s", p.Stimulus, p.Skill)
		return &Hit{Skill: p.Skill, Params: p.Params, Source: "learned"}
	}
	l.mu.Unlock()

	for _, rule := range staticRules {
		m := rule.re.FindStringSubmatch(exact)
		if m == nil {
			continue
		}
		params := map[string]string{}
		for i, name := range rule.re.SubexpNames() {
			if name != "" && i < len(m) {
				params[name] = m[i]
			}
		}
		resp := rule.template
		for name, val := range params {
			resp = strings.ReplaceAll(resp, "{"+name+"}", val)
		}
		l.hits.Add(1)
		logging.ReflexDebug("static hit %q for %q", rule.re.String(), exact)
		return &Hit{Response: resp, Skill: rule.skill, Params: params, Source: "static"}
	}
	l.misses.Add(1)
	return nil
}

// HitRate returns hit and miss counts since startup.
func (l *Layer) HitRate() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

// CachePut stores a response under the exact text of its stimulus. The cache
// replays repeats verbatim; anything needing parameters belongs in a learned
// pattern instead.
func (l *Layer) CachePut(stimulus, response string) {
	key := strings.TrimSpace(stimulus)
	if key == "" || response == "" {
		return
	}
	l.mu.Lock()
	l.cache[key] = response
	l.seq++
	l.seen[key] = l.seq
	l.evictOverLocked()
	l.mu.Unlock()
	l.debounce.MarkDirty()
}

// evictOverLocked drops the stalest cache entries until the cap holds.
// Caller holds mu.
func (l *Layer) evictOverLocked() {
	for len(l.cache) > cacheCap {
		victim := ""
		oldest := l.seq + 1
		for k, s := range l.seen {
			if s < oldest {
				victim, oldest = k, s
			}
		}
		delete(l.cache, victim)
		delete(l.seen, victim)
	}
}

// LearnPattern installs a stimulus->skill mapping. Installation is
// unconditional: the caller (an applied evolution mutation) has already
// judged the pattern worth keeping. Re-learning a stimulus overwrites it.
func (l *Layer) LearnPattern(stimulus, skill string, params map[string]string) {
	key := normalize(stimulus)
	if key == "" || skill == "" {
		return
	}
	l.mu.Lock()
	l.patterns[key] = &LearnedPattern{
		Stimulus:  key,
		Skill:     skill,
		Params:    params,
		LearnedAt: time.Now().UTC(),
	}
	l.mu.Unlock()
	l.debounce.MarkDirty()
	logging.Reflex("learned pattern %q -> %s", key, skill)
}

// Stats returns cache and learned-pattern counts for /status.
func (l *Layer) Stats() (cached, learned int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache), len(l.patterns)
}

// Flush forces a pending save.
func (l *Layer) Flush() error {
	return l.debounce.Flush()
}

// Close flushes and stops persistence.
func (l *Layer) Close() error {
	err := l.debounce.Flush()
	l.debounce.Stop()
	return err
}

func (l *Layer) save() error {
	l.mu.RLock()
	f := reflexFile{Cache: l.cache, Patterns: l.patterns}
	data, err := json.MarshalIndent(f, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
