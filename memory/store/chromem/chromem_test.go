package chromem_test

import (
	"context"
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/m-mizutani/gt"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func record(id, text string, offset time.Duration, vec ...float32) *core.StoredRecord {
	return &core.StoredRecord{
		ID:        id,
		Text:      text,
		Sender:    core.SenderUser,
		Timestamp: epoch.Add(offset),
		Metadata: core.ConversationMetadata{
			SessionID:  "s1",
			Persona:    "assistant",
			DeviceType: "desktop",
			ToolsUsed:  []string{"search"},
			Timestamp:  epoch.Add(offset),
		},
		Embedding: vec,
	}
}

func newStore(t *testing.T, opts ...chromem.Option) *chromem.Store {
	t.Helper()
	opts = append([]chromem.Option{chromem.WithLogger(logging.Discard())}, opts...)
	s, err := chromem.New(opts...)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	gt.NoError(t, s.Add(ctx, record("a", "coffee", 0, 1, 0, 0)))
	gt.NoError(t, s.Add(ctx, record("b", "tea", time.Second, 0.8, 0.6, 0)))
	gt.NoError(t, s.Add(ctx, record("c", "weather", 2*time.Second, 0, 0, 1)))
	gt.Equal(t, s.Count(), 3)

	matches, err := s.Query(ctx, []float32{1, 0, 0}, "coffee", 2)
	gt.NoError(t, err)
	gt.A(t, matches).Length(2)
	gt.Equal(t, matches[0].Record.ID, "a")
	gt.Equal(t, matches[1].Record.ID, "b")
	gt.True(t, matches[0].Distance < 1e-5)
	gt.True(t, matches[1].Distance > 0.19 && matches[1].Distance < 0.21)

	got := matches[0].Record
	gt.Equal(t, got.Text, "coffee")
	gt.Equal(t, got.Sender, core.SenderUser)
	gt.True(t, got.Timestamp.Equal(epoch))
	gt.Equal(t, got.Metadata.Persona, "assistant")
	gt.Equal(t, got.Metadata.ToolsUsed, []string{"search"})
	gt.True(t, got.Metadata.Timestamp.Equal(epoch))
}

func TestStore_QueryCapsLimit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	matches, err := s.Query(ctx, []float32{1, 0}, "empty", 5)
	gt.NoError(t, err)
	gt.A(t, matches).Length(0)

	gt.NoError(t, s.Add(ctx, record("a", "only", 0, 1, 0)))
	matches, err = s.Query(ctx, []float32{1, 0}, "only", 5)
	gt.NoError(t, err)
	gt.A(t, matches).Length(1)
}

func TestStore_AddRejects(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.Add(ctx, record("a", "no vector", 0))
	gt.Error(t, err)
	gt.True(t, memory.HasTag(err, memory.ErrTagWrite))

	gt.NoError(t, s.Add(ctx, record("b", "three", 0, 1, 0, 0)))
	err = s.Add(ctx, record("c", "two", 0, 1, 0))
	gt.Error(t, err)
	gt.True(t, memory.HasTag(err, memory.ErrTagWrite))
}

func TestStore_ListAll(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// Inserted out of timestamp order.
	gt.NoError(t, s.Add(ctx, record("b", "B", time.Second, 0, 1)))
	gt.NoError(t, s.Add(ctx, record("c", "C", 2*time.Second, 1, 1)))
	gt.NoError(t, s.Add(ctx, record("a", "A", 0, 1, 0)))

	page, err := s.ListAll(ctx, 2, 0)
	gt.NoError(t, err)
	gt.Equal(t, page.Total, 3)
	gt.A(t, page.Records).Length(2)
	gt.Equal(t, page.Records[0].Text, "A")
	gt.Equal(t, page.Records[1].Text, "B")

	page, err = s.ListAll(ctx, 2, 2)
	gt.NoError(t, err)
	gt.A(t, page.Records).Length(1)
	gt.Equal(t, page.Records[0].Text, "C")

	page, err = s.ListAll(ctx, 2, 10)
	gt.NoError(t, err)
	gt.A(t, page.Records).Length(0)
	gt.Equal(t, page.Total, 3)
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newStore(t, chromem.WithPersistence(dir, false), chromem.WithDimensions(2))
	gt.NoError(t, s.Add(ctx, record("a", "remember me", 0, 1, 0)))
	gt.NoError(t, s.Close())

	reopened := newStore(t, chromem.WithPersistence(dir, false), chromem.WithDimensions(2))
	gt.Equal(t, reopened.Count(), 1)

	page, err := reopened.ListAll(ctx, 10, 0)
	gt.NoError(t, err)
	gt.A(t, page.Records).Length(1)
	gt.Equal(t, page.Records[0].Text, "remember me")
}

func TestStore_WithOrchestrator(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	cfg := memory.DefaultConfig()
	cfg.StartupGrace = 0
	cfg.BatchDelay = 0
	o, err := memory.New(staticEmbedder{}, s, nil, memory.WithConfig(cfg), memory.WithLogger(logging.Discard()))
	gt.NoError(t, err).Required()
	defer o.Close()

	meta := core.ConversationMetadata{Persona: "assistant", DeviceType: "desktop"}
	for i, text := range []string{"A", "B", "C"} {
		msg := core.NewMessage(core.SenderUser, text, epoch.Add(time.Duration(i)*time.Second))
		gt.NoError(t, o.StoreMessage(ctx, msg, meta))
	}

	recent, err := o.GetRecentConversations(ctx, 2)
	gt.NoError(t, err)
	gt.A(t, recent).Length(2)
	gt.Equal(t, recent[0].Text, "C")
	gt.Equal(t, recent[1].Text, "B")

	found, err := o.SearchConversations(ctx, "A", 1)
	gt.NoError(t, err)
	gt.A(t, found).Length(1)
	gt.Equal(t, found[0].Text, "A")
}

// staticEmbedder maps single letters to axis vectors.
type staticEmbedder struct{}

func (staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 3)
	switch text {
	case "A":
		vec[0] = 1
	case "B":
		vec[1] = 1
	default:
		vec[2] = 1
	}
	return vec, nil
}

func (staticEmbedder) Dimensions() int { return 3 }
