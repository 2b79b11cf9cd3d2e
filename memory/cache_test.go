package memory_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/m-mizutani/gt"
)

func results(texts ...string) []core.RankedResult {
	out := make([]core.RankedResult, len(texts))
	for i, t := range texts {
		out[i] = core.RankedResult{Text: t, Sender: core.SenderUser, Timestamp: epoch, Relevance: 0.5}
	}
	return out
}

func TestQueryCache_GetSet(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(10, time.Minute, clock.Now)

	_, ok := c.Get("a:5")
	gt.False(t, ok)

	c.Set("a:5", results("one", "two"))
	got, ok := c.Get("a:5")
	gt.True(t, ok)
	gt.A(t, got).Length(2)
	gt.Equal(t, got[0].Text, "one")

	stats := c.Stats()
	gt.Equal(t, stats.Hits, uint64(1))
	gt.Equal(t, stats.Misses, uint64(1))
	gt.Equal(t, stats.Size, 1)
}

func TestQueryCache_ReturnsCopies(t *testing.T) {
	c := memory.NewQueryCache(10, time.Minute, nil)

	in := results("one")
	in[0].Metadata.ToolsUsed = []string{"search"}
	c.Set("k", in)
	in[0].Text = "changed"
	in[0].Metadata.ToolsUsed[0] = "changed"

	got, ok := c.Get("k")
	gt.True(t, ok)
	gt.Equal(t, got[0].Text, "one")
	gt.Equal(t, got[0].Metadata.ToolsUsed[0], "search")

	got[0].Text = "mutated"
	again, _ := c.Get("k")
	gt.Equal(t, again[0].Text, "one")
}

func TestQueryCache_EmptyResultsAreCached(t *testing.T) {
	c := memory.NewQueryCache(10, time.Minute, nil)
	c.Set("k", nil)

	got, ok := c.Get("k")
	gt.True(t, ok)
	gt.NotNil(t, got)
	gt.A(t, got).Length(0)
}

func TestQueryCache_TTL(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(10, time.Minute, clock.Now)
	c.Set("k", results("one"))

	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	gt.True(t, ok)

	// Age equal to the TTL is already expired.
	clock.Advance(time.Second)
	_, ok = c.Get("k")
	gt.False(t, ok)
	gt.Equal(t, c.Len(), 0)

	stats := c.Stats()
	gt.Equal(t, stats.Expirations, uint64(1))
	gt.Equal(t, stats.Misses, uint64(1))
}

func TestQueryCache_ReadsDoNotRefresh(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(10, time.Minute, clock.Now)
	c.Set("k", results("one"))

	for range 5 {
		clock.Advance(10 * time.Second)
		_, ok := c.Get("k")
		gt.True(t, ok)
	}
	clock.Advance(10 * time.Second)
	_, ok := c.Get("k")
	gt.False(t, ok)
}

func TestQueryCache_EvictsOldest(t *testing.T) {
	clock := newFakeClock()
	const size = 5
	c := memory.NewQueryCache(size, time.Hour, clock.Now)

	for i := range size + 1 {
		c.Set(fmt.Sprintf("q%d:5", i), results(fmt.Sprint(i)))
		clock.Advance(time.Second)
		gt.True(t, c.Len() <= size)
	}

	gt.Equal(t, c.Len(), size)
	_, ok := c.Get("q0:5")
	gt.False(t, ok)
	for i := 1; i <= size; i++ {
		_, ok := c.Get(fmt.Sprintf("q%d:5", i))
		gt.True(t, ok)
	}
	gt.Equal(t, c.Stats().Evictions, uint64(1))
}

func TestQueryCache_EvictionIgnoresReads(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(2, time.Hour, clock.Now)

	c.Set("old", results("old"))
	clock.Advance(time.Second)
	c.Set("new", results("new"))
	clock.Advance(time.Second)

	// Reading "old" must not save it.
	_, ok := c.Get("old")
	gt.True(t, ok)

	c.Set("newest", results("newest"))
	_, ok = c.Get("old")
	gt.False(t, ok)
	_, ok = c.Get("new")
	gt.True(t, ok)
}

func TestQueryCache_EvictionTieBreaksOnInsertOrder(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(3, time.Hour, clock.Now)

	c.Set("a", results("a"))
	c.Set("b", results("b"))
	c.Set("c", results("c"))
	c.Set("d", results("d"))

	_, ok := c.Get("a")
	gt.False(t, ok)
	_, ok = c.Get("b")
	gt.True(t, ok)
}

func TestQueryCache_OverwriteDoesNotEvict(t *testing.T) {
	c := memory.NewQueryCache(2, time.Hour, nil)
	c.Set("a", results("a"))
	c.Set("b", results("b"))
	c.Set("a", results("a2"))

	gt.Equal(t, c.Len(), 2)
	gt.Equal(t, c.Stats().Evictions, uint64(0))
	got, _ := c.Get("a")
	gt.Equal(t, got[0].Text, "a2")
}

func TestQueryCache_InvalidateAll(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(10, time.Minute, clock.Now)
	c.Set("a", results("a"))
	clock.Advance(30 * time.Second)
	c.Set("b", results("b"))

	gt.Equal(t, c.InvalidateAll(), 2)
	gt.Equal(t, c.Len(), 0)
	gt.Equal(t, c.Stats().Invalidations, uint64(1))

	// Nothing to drop; counter stays put.
	gt.Equal(t, c.InvalidateAll(), 0)
	gt.Equal(t, c.Stats().Invalidations, uint64(1))
}

func TestQueryCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := memory.NewQueryCache(10, time.Minute, clock.Now)
	c.Set("a", results("a"))
	clock.Advance(40 * time.Second)
	c.Set("b", results("b"))
	clock.Advance(20 * time.Second)

	gt.Equal(t, c.Sweep(), 1)
	gt.Equal(t, c.Len(), 1)
	_, ok := c.Get("b")
	gt.True(t, ok)
}

func TestCacheKey(t *testing.T) {
	gt.Equal(t, memory.CacheKey("  Coffee   Order ", 5), "coffee order:5")
	gt.Equal(t, memory.CacheKey("coffee order", 5), memory.CacheKey("COFFEE\torder", 5))
	gt.True(t, memory.CacheKey("coffee", 5) != memory.CacheKey("coffee", 6))
}

func TestQueryCache_ConcurrentAccess(t *testing.T) {
	const (
		maxSize = 8
		workers = 8
		rounds  = 500
	)
	clock := newFakeClock()
	c := memory.NewQueryCache(maxSize, 20*time.Millisecond, clock.Now)

	var (
		wg       sync.WaitGroup
		oversize atomic.Int64
		torn     atomic.Int64
	)
	check := func() {
		if c.Len() > maxSize {
			oversize.Add(1)
		}
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := memory.CacheKey(fmt.Sprintf("q%d-%d", w, i%13), 5)
				switch i % 4 {
				case 0, 1:
					c.Set(key, results("r"))
				case 2:
					if got, ok := c.Get(key); ok && len(got) != 1 {
						torn.Add(1)
					}
				case 3:
					if i%40 == 3 {
						c.InvalidateAll()
					}
				}
				check()
			}
		}(w)
	}

	// Sweeper and clock run alongside the workers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			clock.Advance(time.Millisecond)
			c.Sweep()
			check()
		}
	}()

	wg.Wait()
	<-done

	gt.Equal(t, oversize.Load(), int64(0))
	gt.Equal(t, torn.Load(), int64(0))
	gt.True(t, c.Len() <= maxSize)
	stats := c.Stats()
	gt.True(t, stats.Evictions > 0)
	gt.Equal(t, stats.Size, c.Len())
}
