package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"aura/internal/embedding"
)

func TestLessonDedupeIncrementsCount(t *testing.T) {
	ls, err := NewLessonStore(filepath.Join(t.TempDir(), "lessons.json"))
	if err != nil {
		t.Fatalf("NewLessonStore failed: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	e := embedding.NewHashEngine(32)

	created, err := ls.Add(ctx, e, "prefer metric units", "aura", "task-1", 0.9)
	if err != nil || !created {
		t.Fatalf("first Add: created=%v err=%v", created, err)
	}
	created, err = ls.Add(ctx, e, "prefer metric units", "aura", "task-2", 0.8)
	if err != nil {
		t.Fatalf("second Add failed: %v", err)
	}
	if created {
		t.Error("duplicate text should reinforce, not create")
	}
	if ls.Len() != 1 {
		t.Errorf("expected 1 lesson, got %d", ls.Len())
	}

	got, _ := ls.Search(ctx, e, "metric units", 1)
	if len(got) != 1 {
		t.Fatalf("Search returned %d lessons", len(got))
	}
	if got[0].Metadata.Count != 2 {
		t.Errorf("count = %d, want 2", got[0].Metadata.Count)
	}
	if got[0].Metadata.Reliability != 0.9 {
		t.Errorf("reliability must keep the max, got %v", got[0].Metadata.Reliability)
	}
}

func TestLessonPersistenceRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.json")
	ctx := context.Background()
	e := embedding.NewHashEngine(32)

	ls, err := NewLessonStore(path)
	if err != nil {
		t.Fatalf("NewLessonStore failed: %v", err)
	}
	ls.Add(ctx, e, "the user works late on tuesdays", "aura", "", 0.7)
	if err := ls.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reloaded, err := NewLessonStore(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer reloaded.Close()
	if reloaded.Len() != 1 {
		t.Errorf("expected 1 lesson after reload, got %d", reloaded.Len())
	}
}

func TestLessonCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	ls, err := NewLessonStore(path)
	if err != nil {
		t.Fatalf("corrupt file must not fail load: %v", err)
	}
	defer ls.Close()
	if ls.Len() != 0 {
		t.Errorf("expected empty store, got %d", ls.Len())
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Error("corrupt file should be preserved aside")
	}
}

func TestLessonSearchWithoutEmbedderFallsBack(t *testing.T) {
	ls, err := NewLessonStore(filepath.Join(t.TempDir(), "lessons.json"))
	if err != nil {
		t.Fatalf("NewLessonStore failed: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	ls.Add(ctx, nil, "oldest", "aura", "", 0.5)
	ls.Add(ctx, nil, "newest", "aura", "", 0.5)

	got, err := ls.Search(ctx, nil, "anything", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].Text != "newest" {
		t.Errorf("fallback should return newest lesson, got %+v", got)
	}
}

func TestLessonFileKeepsParallelArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.json")
	ctx := context.Background()
	e := embedding.NewHashEngine(32)

	ls, err := NewLessonStore(path)
	if err != nil {
		t.Fatalf("NewLessonStore failed: %v", err)
	}
	ls.Add(ctx, e, "dim the lights before movies", "aura", "", 0.8)
	ls.AddFailure(ctx, e, "the projector skill failed without the hdmi input", "controller", "", 0.6)
	if err := ls.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	var f lessonsFile
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("saved file is not valid JSON: %v", err)
	}
	if len(f.Lessons) != 2 || len(f.Embeddings) != 2 || len(f.Metadata) != 2 ||
		len(f.Relationships) != 2 || len(f.Failures) != 2 {
		t.Fatalf("arrays out of lockstep: lessons=%d embeddings=%d metadata=%d relationships=%d failures=%d",
			len(f.Lessons), len(f.Embeddings), len(f.Metadata), len(f.Relationships), len(f.Failures))
	}
	if f.Failures[0] || !f.Failures[1] {
		t.Errorf("failure flags = %v, want [false true]", f.Failures)
	}
}

func TestFailureLessonFlagSurvivesRecall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.json")
	ctx := context.Background()
	e := embedding.NewHashEngine(32)

	ls, err := NewLessonStore(path)
	if err != nil {
		t.Fatalf("NewLessonStore failed: %v", err)
	}
	ls.AddFailure(ctx, e, "deleting the cache directory broke the media server", "controller", "", 0.7)
	if err := ls.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reloaded, err := NewLessonStore(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer reloaded.Close()

	got, err := reloaded.Search(ctx, e, "cache directory", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Search returned %d lessons", len(got))
	}
	if !got[0].Failure {
		t.Error("failure flag lost across save and recall")
	}
}

func TestLessonRelationshipsLinkBySourceTask(t *testing.T) {
	ls, err := NewLessonStore(filepath.Join(t.TempDir(), "lessons.json"))
	if err != nil {
		t.Fatalf("NewLessonStore failed: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	e := embedding.NewHashEngine(32)

	// Two lessons from the same task: the second has no vector, so only the
	// relationship link can surface it.
	ls.Add(ctx, e, "filesystem writes need the sandbox", "aura", "task-7", 0.9)
	ls.Add(ctx, nil, "the nas mount drops at night", "aura", "task-7", 0.8)

	got, err := ls.Search(ctx, e, "sandbox for writes", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected linked lesson to ride along, got %d results", len(got))
	}
	if got[1].Text != "the nas mount drops at night" {
		t.Errorf("associative result = %q", got[1].Text)
	}
}
