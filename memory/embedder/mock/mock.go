// Package mock provides a deterministic embedder for tests and examples.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/dialogkit/convmem/memory"
)

const defaultDimensions = 384

// Embedder generates deterministic embeddings without a model. Each token
// contributes a hash-seeded pseudo-random vector, so texts sharing words
// produce similar embeddings. Document and query tasks embed identically.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with MiniLM-compatible dimensions.
func New() *Embedder {
	return &Embedder{dimensions: defaultDimensions}
}

// Embed produces the same vector for the same text, every time.
func (e *Embedder) Embed(_ context.Context, text string, _ memory.TaskType) ([]float32, error) {
	sum := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		vec := tokenVector(token, e.dimensions)
		for i, v := range vec {
			sum[i] += v
		}
	}
	return normalize(sum), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// tokenVector derives a pseudo-random unit-scale vector from a token hash.
func tokenVector(token string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(token))
	seed := h.Sum64()

	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return vec
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
