// Package cached memoizes embeddings in a ristretto cache keyed by content
// hash, so repeated texts (retries, re-asked questions) skip the provider.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/memory"
)

// Config sizes the cache.
type Config struct {
	// MaxBytes bounds the total size of cached vectors.
	MaxBytes int64

	// TTL is how long a vector stays cached. Zero keeps it until evicted.
	TTL time.Duration
}

// DefaultConfig holds 32 MiB of vectors for an hour.
func DefaultConfig() Config {
	return Config{
		MaxBytes: 32 << 20,
		TTL:      time.Hour,
	}
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Embedder wraps another memory.Embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
	ttl   time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New wraps inner.
func New(inner memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}
	// ~10 counters per expected entry; assume 768-dim vectors
	entries := max(cfg.MaxBytes/(768*4), 1)

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &Embedder{inner: inner, cache: cache, ttl: cfg.TTL}, nil
}

// Embed returns a cached vector for text or computes and caches it.
// Callers receive their own copy.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			e.hits.Add(1)
			return slices.Clone(vec), nil
		}
	}
	e.misses.Add(1)

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	cost := int64(len(vec) * 4)
	if e.ttl > 0 {
		e.cache.SetWithTTL(key, slices.Clone(vec), cost, e.ttl)
	} else {
		e.cache.Set(key, slices.Clone(vec), cost)
	}
	return vec, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// HealthCheck delegates to the wrapped embedder when it supports it.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(memory.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Stats returns hit and miss counts.
func (e *Embedder) Stats() Stats {
	return Stats{Hits: e.hits.Load(), Misses: e.misses.Load()}
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}

// ContentHash computes a SHA-256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

var (
	_ memory.Embedder      = (*Embedder)(nil)
	_ memory.HealthChecker = (*Embedder)(nil)
)
