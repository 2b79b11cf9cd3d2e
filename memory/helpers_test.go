package memory_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/m-mizutani/goerr/v2"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingEmbedder hashes text into a small vector and counts calls.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	v := float32(h.Sum32()%1000) / 1000
	return []float32{v, 1 - v, 0.5}, nil
}

func (e *countingEmbedder) Dimensions() int { return 3 }

func (e *countingEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeStore keeps records in insertion order. Query returns every record
// with the distance from distances (default 0.5), in insertion order, so
// callers must do their own ranking.
type fakeStore struct {
	mu        sync.Mutex
	records   []core.StoredRecord
	distances map[string]float64

	addErr    error
	queryErr  error
	listErr   error
	healthErr error

	queries int
	lists   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{distances: map[string]float64{}}
}

func (s *fakeStore) Add(ctx context.Context, rec *core.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeStore) Query(ctx context.Context, embedding []float32, queryText string, limit int) ([]memory.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []memory.Match
	for _, r := range s.records {
		d, ok := s.distances[r.Text]
		if !ok {
			d = 0.5
		}
		out = append(out, memory.Match{Record: r, Distance: d})
	}
	return out, nil
}

func (s *fakeStore) ListAll(ctx context.Context, limit, offset int) (*memory.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	total := len(s.records)
	end := min(offset+limit, total)
	if offset > total {
		offset = total
	}
	return &memory.Page{Records: slices.Clone(s.records[offset:end]), Total: total}, nil
}

func (s *fakeStore) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

func (s *fakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

type fakeLog struct {
	messages []core.Message
	err      error
}

func (l *fakeLog) ReadAll(ctx context.Context) ([]core.Message, error) {
	if l.err != nil {
		return nil, l.err
	}
	return slices.Clone(l.messages), nil
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

var errDown = goerr.New("connection refused", goerr.T(memory.ErrTagStoreUnavailable))

var errBoom = errors.New("boom")

func testConfig() memory.Config {
	cfg := memory.DefaultConfig()
	cfg.StartupGrace = 0
	cfg.BatchDelay = 0
	cfg.CallTimeout = time.Second
	return cfg
}

func testMeta() core.ConversationMetadata {
	return core.ConversationMetadata{
		Persona:    "assistant",
		DeviceType: "desktop",
	}
}

func msgAt(sender core.Sender, text string, offset time.Duration) core.Message {
	return core.NewMessage(sender, text, epoch.Add(offset))
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
