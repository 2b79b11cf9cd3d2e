// Package mock provides a deterministic hash-based embedder for tests and
// offline demos. Identical texts always map to the same unit vector; different
// texts map to unrelated ones.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder generates deterministic embeddings from a text hash.
type Embedder struct {
	dimensions int
	fail       error
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithDimensions sets the vector size.
func WithDimensions(n int) Option {
	return func(e *Embedder) {
		e.dimensions = n
	}
}

// WithError makes every Embed call fail with err, tagged as an embedding
// failure.
func WithError(err error) Option {
	return func(e *Embedder) {
		e.fail = err
	}
}

// New creates a mock embedder.
func New(opts ...Option) *Embedder {
	e := &Embedder{dimensions: DefaultDimensions}
	for _, opt := range opts {
		opt(e)
	}
	if e.dimensions < 1 {
		e.dimensions = DefaultDimensions
	}
	return e
}

// Embed creates a deterministic embedding from text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "embed canceled", goerr.T(memory.ErrTagEmbedding))
	}
	if e.fail != nil {
		return nil, goerr.Wrap(e.fail, "mock embedder failure", goerr.T(memory.ErrTagEmbedding))
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

var _ memory.Embedder = (*Embedder)(nil)
