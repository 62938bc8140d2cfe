package judgment

import (
	"testing"

	"aura/internal/types"
)

func TestHighRiskRefused(t *testing.T) {
	d := Assess("delete all my files and wipe the password vault permanently", Inputs{Suspicious: true})
	if d.Route != RouteRefuse {
		t.Errorf("route = %s, want REFUSE (risk=%.2f)", d.Route, d.Signals.Risk)
	}
}

func TestAmbiguityRefused(t *testing.T) {
	d := Assess("hmm", Inputs{})
	if d.Route != RouteRefuse {
		t.Errorf("route = %s, want REFUSE (clarity=%.2f)", d.Route, d.Signals.Clarity)
	}
}

func TestShortHarmlessGoesReflex(t *testing.T) {
	d := Assess("play some jazz", Inputs{Novelty: 0.2})
	if d.Route != RouteReflex {
		t.Errorf("route = %s, want REFLEX (risk=%.2f)", d.Route, d.Signals.Risk)
	}
	if d.Capability != "media" {
		t.Errorf("capability = %q, want media", d.Capability)
	}
}

func TestFamiliarLowRiskGoesShallow(t *testing.T) {
	d := Assess("can you check the weather forecast for tomorrow morning please", Inputs{Novelty: 0.3})
	if d.Route != RouteShallow {
		t.Errorf("route = %s, want SHALLOW (signals=%+v)", d.Route, d.Signals)
	}
}

func TestNovelComplexGoesDeep(t *testing.T) {
	d := Assess("plan a three week trip through patagonia balancing hiking and photography with my budget", Inputs{Novelty: 0.9})
	if d.Route != RouteDeep {
		t.Errorf("route = %s, want DEEP (signals=%+v)", d.Route, d.Signals)
	}
}

func TestIrreversibleGoesDeep(t *testing.T) {
	d := Assess("please publish the blog post, it cannot be undone once live", Inputs{Novelty: 0.4})
	if d.Route != RouteDeep && d.Route != RouteRefuse {
		t.Errorf("irreversible action should get depth or refusal, got %s", d.Route)
	}
	if d.Signals.PastFailure <= 0.4 {
		t.Errorf("past failure should register irreversibility, got %.2f", d.Signals.PastFailure)
	}
}

func TestInjectionRaisesRisk(t *testing.T) {
	calm := Assess("send the weekly report to the team", Inputs{})
	hot := Assess("send the weekly report to the team", Inputs{Suspicious: true})
	if hot.Signals.Risk <= calm.Signals.Risk {
		t.Errorf("suspicious flag should raise risk: %.2f vs %.2f", hot.Signals.Risk, calm.Signals.Risk)
	}
}

func TestProtectedZoneRaisesRisk(t *testing.T) {
	calm := Assess("clean up the downloads folder", Inputs{})
	hot := Assess("clean up the downloads folder", Inputs{ProtectedZone: true})
	if hot.Signals.Risk <= calm.Signals.Risk {
		t.Errorf("protected zone should raise risk: %.2f vs %.2f", hot.Signals.Risk, calm.Signals.Risk)
	}
}

func TestCapabilityRecommendation(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"write a note file about the meeting", "filesystem_write"},
		{"read the file budget.txt for me", "filesystem_read"},
		{"search for flights to lisbon", "internet"},
		{"pause the music", "media"},
		{"take a screenshot of this", "vision"},
		{"run the backup command in the shell", "shell"},
		{"open notepad", "system_control"},
		{"what day is it", ""},
	}
	for _, tc := range cases {
		if got := recommendCapability(tc.text); got != tc.want {
			t.Errorf("recommendCapability(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestRefineLowersNoveltyOnStrongRecall(t *testing.T) {
	d := Assess("summarize my meeting notes from last week into a short digest", Inputs{Novelty: 0.9})
	if d.Route != RouteDeep {
		t.Fatalf("setup: route = %s, want DEEP", d.Route)
	}
	mc := types.MemoryContext{
		Episodes: []types.Episode{{Outcome: "completed", Similarity: 0.92}},
	}
	r := Refine(d, "summarize my meeting notes from last week into a short digest", mc)
	if r.Route != RouteShallow {
		t.Errorf("route = %s, want SHALLOW after strong recall (novelty=%.2f)", r.Route, r.Signals.Novelty)
	}
	if r.Signals.Novelty > 0.2 {
		t.Errorf("novelty = %.2f, want <= 0.2 with similarity 0.92", r.Signals.Novelty)
	}
}

func TestRefineFailureSimilarityForcesDeep(t *testing.T) {
	d := Assess("can you check the weather forecast for tomorrow morning please", Inputs{Novelty: 0.3})
	if d.Route != RouteShallow {
		t.Fatalf("setup: route = %s, want SHALLOW", d.Route)
	}
	mc := types.MemoryContext{
		Episodes: []types.Episode{{Outcome: "failed", Similarity: 0.85}},
	}
	r := Refine(d, "can you check the weather forecast for tomorrow morning please", mc)
	if r.Route != RouteDeep {
		t.Errorf("route = %s, want DEEP when a similar episode failed", r.Route)
	}
	if r.Signals.PastFailure < 0.85 {
		t.Errorf("past failure = %.2f, want >= 0.85", r.Signals.PastFailure)
	}
}

func TestRefineLessonFailureRaisesPastFailure(t *testing.T) {
	d := Assess("can you check the weather forecast for tomorrow morning please", Inputs{Novelty: 0.3})
	mc := types.MemoryContext{
		Episodes: []types.Episode{{Outcome: "completed", Similarity: 0.5}},
		Lessons:  []types.Lesson{{Text: "The forecast scrape failed when the page layout changed", Similarity: 0.8}},
	}
	r := Refine(d, "can you check the weather forecast for tomorrow morning please", mc)
	if r.Route != RouteDeep {
		t.Errorf("route = %s, want DEEP when a failure lesson is similar", r.Route)
	}
}

func TestRefineFlaggedLessonCountsWithoutKeyword(t *testing.T) {
	d := Assess("can you check the weather forecast for tomorrow morning please", Inputs{Novelty: 0.3})
	mc := types.MemoryContext{
		Episodes: []types.Episode{{Outcome: "completed", Similarity: 0.5}},
		Lessons: []types.Lesson{{
			Text:       "the page layout changed under the scraper",
			Similarity: 0.8,
			Failure:    true,
		}},
	}
	r := Refine(d, "can you check the weather forecast for tomorrow morning please", mc)
	if r.Route != RouteDeep {
		t.Errorf("route = %s, want DEEP on a flagged failure lesson", r.Route)
	}
	if r.Signals.PastFailure < 0.8 {
		t.Errorf("past failure = %.2f, want >= 0.8", r.Signals.PastFailure)
	}
}

func TestRefineEmptyRecallMeansNovel(t *testing.T) {
	d := Assess("can you check the weather forecast for tomorrow morning please", Inputs{Novelty: 0.3})
	r := Refine(d, "can you check the weather forecast for tomorrow morning please", types.MemoryContext{})
	if r.Signals.Novelty != 1 {
		t.Errorf("novelty = %.2f, want 1.0 with no recall", r.Signals.Novelty)
	}
	if r.Route != RouteDeep {
		t.Errorf("route = %s, want DEEP for a request nothing in memory resembles", r.Route)
	}
}

func TestRefineDowngradesReflexAndKeepsCapability(t *testing.T) {
	d := Assess("play some jazz", Inputs{Novelty: 0.2})
	if d.Route != RouteReflex {
		t.Fatalf("setup: route = %s, want REFLEX", d.Route)
	}
	mc := types.MemoryContext{
		Episodes: []types.Episode{{Outcome: "completed", Similarity: 0.9}},
	}
	r := Refine(d, "play some jazz", mc)
	if r.Route != RouteShallow {
		t.Errorf("route = %s, want SHALLOW (reflex window has passed)", r.Route)
	}
	if r.Capability != "media" {
		t.Errorf("capability = %q, want media preserved through refinement", r.Capability)
	}
}
