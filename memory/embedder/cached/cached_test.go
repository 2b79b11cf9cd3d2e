package cached_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/memory/embedder/cached"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/m-mizutani/gt"
)

type countingEmbedder struct {
	inner *mock.Embedder
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func TestEmbedder_CachesByContent(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: mock.New(mock.WithDimensions(8))}
	e, err := cached.New(inner, cached.Config{MaxBytes: 1 << 20, TTL: time.Minute})
	gt.NoError(t, err).Required()
	t.Cleanup(e.Close)

	first, err := e.Embed(ctx, "same text")
	gt.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "same text")
	gt.NoError(t, err)
	gt.Equal(t, first, second)
	gt.Equal(t, inner.calls.Load(), int32(1))

	// Mutating a returned vector must not poison the cache.
	second[0] = 42
	third, err := e.Embed(ctx, "same text")
	gt.NoError(t, err)
	gt.Equal(t, third, first)

	_, err = e.Embed(ctx, "other text")
	gt.NoError(t, err)
	gt.Equal(t, inner.calls.Load(), int32(2))

	stats := e.Stats()
	gt.Equal(t, stats.Hits, uint64(2))
	gt.Equal(t, stats.Misses, uint64(2))
	gt.Equal(t, e.Dimensions(), 8)
}

func TestEmbedder_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: mock.New(), err: errors.New("down")}
	e, err := cached.New(inner, cached.DefaultConfig())
	gt.NoError(t, err).Required()
	t.Cleanup(e.Close)

	_, err = e.Embed(ctx, "x")
	gt.Error(t, err)
	e.Wait()
	_, err = e.Embed(ctx, "x")
	gt.Error(t, err)
	gt.Equal(t, inner.calls.Load(), int32(2))
}

func TestContentHash(t *testing.T) {
	gt.Equal(t, cached.ContentHash("abc"), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
}
