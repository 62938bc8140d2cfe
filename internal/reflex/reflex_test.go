package reflex

import (
	"fmt"
	"path/filepath"
	"testing"
)

func testLayer(t *testing.T) *Layer {
	t.Helper()
	l, err := Load(filepath.Join(t.TempDir(), "reflexes.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStaticTableGreeting(t *testing.T) {
	l := testLayer(t)
	hit := l.Match("hello")
	if hit == nil || hit.Source != "static" {
		t.Fatalf("expected static hit, got %+v", hit)
	}
	if hit.Response == "" {
		t.Error("greeting should have a response")
	}
}

func TestStaticTableNamedGroups(t *testing.T) {
	l := testLayer(t)
	hit := l.Match("open Spotify")
	if hit == nil {
		t.Fatal("expected static hit for open command")
	}
	if hit.Skill != "system.open_app" {
		t.Errorf("skill = %q", hit.Skill)
	}
	if hit.Params["app"] != "Spotify" {
		t.Errorf("named group app = %q", hit.Params["app"])
	}
	if hit.Response != "Opening Spotify." {
		t.Errorf("template substitution failed: %q", hit.Response)
	}
}

func TestCacheIsExactText(t *testing.T) {
	l := testLayer(t)
	l.CachePut("hello", "custom greeting")

	hit := l.Match("hello")
	if hit == nil || hit.Source != "cache" {
		t.Fatalf("exact repeat should hit the cache: %+v", hit)
	}
	if hit.Response != "custom greeting" {
		t.Errorf("response = %q", hit.Response)
	}

	// Different casing is different text: the cache must not answer it.
	hit = l.Match("Hello")
	if hit == nil || hit.Source != "static" {
		t.Errorf("cased variant should fall through to the static table: %+v", hit)
	}
}

func TestCacheTrimsSurroundingWhitespace(t *testing.T) {
	l := testLayer(t)
	l.CachePut("what time is it", "It's 3pm.")
	hit := l.Match("  what time is it  ")
	if hit == nil || hit.Source != "cache" || hit.Response != "It's 3pm." {
		t.Errorf("surrounding whitespace should not defeat the cache: %+v", hit)
	}
}

func TestLearnedPatternFiresSkill(t *testing.T) {
	l := testLayer(t)
	l.LearnPattern("check my email", "system.open_app", map[string]string{"app": "thunderbird"})

	hit := l.Match("Check  My  Email")
	if hit == nil || hit.Source != "learned" {
		t.Fatalf("normalized stimulus should hit the learned tier: %+v", hit)
	}
	if hit.Skill != "system.open_app" {
		t.Errorf("skill = %q", hit.Skill)
	}
	if hit.Params["app"] != "thunderbird" {
		t.Errorf("params = %v", hit.Params)
	}
	if hit.Response != "" {
		t.Errorf("learned hit carries an action, not a canned response: %q", hit.Response)
	}
}

func TestLearnPatternIgnoresEmpty(t *testing.T) {
	l := testLayer(t)
	l.LearnPattern("   ", "system.open_app", nil)
	l.LearnPattern("do the thing", "", nil)
	if _, learned := l.Stats(); learned != 0 {
		t.Errorf("empty stimulus or skill must not be learned, have %d", learned)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflexes.json")
	l, _ := Load(path)
	l.CachePut("ping", "pong")
	l.LearnPattern("open notepad", "system.open_app", map[string]string{"app": "notepad"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer r.Close()

	if hit := r.Match("ping"); hit == nil || hit.Response != "pong" {
		t.Error("cache did not survive reload")
	}
	hit := r.Match("OPEN NOTEPAD")
	if hit == nil || hit.Source != "learned" {
		t.Fatalf("learned pattern did not survive reload: %+v", hit)
	}
	if hit.Skill != "system.open_app" || hit.Params["app"] != "notepad" {
		t.Errorf("learned action lost in roundtrip: %+v", hit)
	}
}

func TestMissReturnsNil(t *testing.T) {
	l := testLayer(t)
	if hit := l.Match("please summarize this quarterly report in detail"); hit != nil {
		t.Errorf("complex request should miss the reflex layer: %+v", hit)
	}
}

func TestStaticTableCommands(t *testing.T) {
	tests := []struct {
		in     string
		skill  string
		params map[string]string
	}{
		{"search for rust async tutorials", "web.search", map[string]string{"query": "rust async tutorials"}},
		{"Search weather tomorrow", "web.search", map[string]string{"query": "weather tomorrow"}},
		{"volume up", "media.control", map[string]string{"action": "up"}},
		{"pause the music", "media.control", map[string]string{"action": "pause"}},
		{"take a screenshot", "system.screenshot", nil},
		{"screenshot", "system.screenshot", nil},
		{"what's the time?", "time.now", nil},
	}
	l := testLayer(t)
	for _, tt := range tests {
		hit := l.Match(tt.in)
		if hit == nil {
			t.Errorf("%q: expected static hit", tt.in)
			continue
		}
		if hit.Skill != tt.skill {
			t.Errorf("%q: skill = %q, want %q", tt.in, hit.Skill, tt.skill)
		}
		for k, v := range tt.params {
			if hit.Params[k] != v {
				t.Errorf("%q: param %s = %q, want %q", tt.in, k, hit.Params[k], v)
			}
		}
	}
}

func TestHitRate(t *testing.T) {
	l := testLayer(t)
	l.Match("hi")
	l.Match("explain quantum entanglement to me in depth")
	l.Match("thanks")
	hits, misses := l.HitRate()
	if hits != 2 || misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2/1", hits, misses)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	l := testLayer(t)
	for i := 0; i < cacheCap; i++ {
		l.CachePut(fmt.Sprintf("remember slot %d", i), fmt.Sprintf("noted %d", i))
	}
	if cached, _ := l.Stats(); cached != cacheCap {
		t.Fatalf("cache holds %d entries, want %d", cached, cacheCap)
	}

	// Touch slot 0 so slot 1 becomes the stalest entry.
	if hit := l.Match("remember slot 0"); hit == nil || hit.Source != "cache" {
		t.Fatalf("slot 0 should still be cached: %+v", hit)
	}

	l.CachePut("remember one more", "noted")
	if cached, _ := l.Stats(); cached != cacheCap {
		t.Errorf("cache grew past the cap: %d", cached)
	}
	if hit := l.Match("remember slot 0"); hit == nil {
		t.Error("recently used entry was evicted")
	}
	if hit := l.Match("remember slot 1"); hit != nil {
		t.Errorf("stalest entry should have been evicted, got %+v", hit)
	}
}
