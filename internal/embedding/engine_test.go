package embedding

import (
	"context"
	"testing"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	a := []float32{1, 2, 3}
	sim, err := CosineSimilarity(a, a)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if sim < 0.999 {
		t.Errorf("identical vectors should have similarity ~1, got %v", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("orthogonal vectors should have similarity 0, got %v", sim)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected error on dimension mismatch")
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("zero vector should yield 0, got %v", sim)
	}
}

func TestFindTopKOrdering(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},      // orthogonal
		{1, 0},      // identical
		{0.7, 0.7},  // diagonal
		{-1, 0},     // opposite
		{1, 2, 3},   // wrong dims, skipped
	}
	results, err := FindTopK(query, corpus, 3)
	if err != nil {
		t.Fatalf("FindTopK failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Index != 1 {
		t.Errorf("best match should be index 1, got %d", results[0].Index)
	}
	if results[1].Index != 2 {
		t.Errorf("second match should be index 2, got %d", results[1].Index)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted descending at %d", i)
		}
	}
}

func TestHashEngineDeterministic(t *testing.T) {
	e := NewHashEngine(128)
	a, err := e.Embed(context.Background(), "open the garage door")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, _ := e.Embed(context.Background(), "open the garage door")
	sim, _ := CosineSimilarity(a, b)
	if sim < 0.999 {
		t.Errorf("identical texts should embed identically, sim=%v", sim)
	}
	if len(a) != 128 {
		t.Errorf("expected 128 dims, got %d", len(a))
	}
}

func TestHashEngineSimilarTextsCloser(t *testing.T) {
	e := NewHashEngine(256)
	ctx := context.Background()
	base, _ := e.Embed(ctx, "play some jazz music in the living room")
	near, _ := e.Embed(ctx, "play some jazz music in the kitchen")
	far, _ := e.Embed(ctx, "compile the quarterly tax report")

	simNear, _ := CosineSimilarity(base, near)
	simFar, _ := CosineSimilarity(base, far)
	if simNear <= simFar {
		t.Errorf("related text should score higher: near=%v far=%v", simNear, simFar)
	}
}

func TestHashEngineEmptyText(t *testing.T) {
	e := NewHashEngine(64)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed failed on empty text: %v", err)
	}
	if len(vec) != 64 {
		t.Errorf("expected 64 dims, got %d", len(vec))
	}
}
