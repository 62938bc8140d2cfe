package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEngine is a deterministic, dependency-free embedding backend. It hashes
// word trigrams into a fixed number of buckets and L2-normalizes the result.
// Quality is far below a real model, but identical texts always map to
// identical vectors, which keeps the exact-recall path and the test suite
// working without any external service.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hash embedding engine with the given dimensions.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed generates a deterministic embedding for the text.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	tokens := tokenize(text)

	add := func(s string, weight float32) {
		h := fnv.New32a()
		h.Write([]byte(s))
		vec[h.Sum32()%uint32(e.dims)] += weight
	}
	for _, tok := range tokens {
		add(tok, 1.0)
	}
	for i := 0; i+1 < len(tokens); i++ {
		add(tokens[i]+" "+tokens[i+1], 0.5)
	}
	for i := 0; i+2 < len(tokens); i++ {
		add(tokens[i]+" "+tokens[i+1]+" "+tokens[i+2], 0.25)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash"
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
