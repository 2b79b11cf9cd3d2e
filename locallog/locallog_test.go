package locallog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/locallog"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/m-mizutani/gt"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func abc() []core.Message {
	return []core.Message{
		core.NewMessage(core.SenderUser, "A", epoch),
		core.NewMessage(core.SenderAgent, "B", epoch.Add(time.Second)),
		core.NewMessage(core.SenderUser, "C", epoch.Add(2*time.Second)),
	}
}

func testLog(t *testing.T, log locallog.Log) {
	ctx := context.Background()

	for _, m := range abc() {
		gt.NoError(t, log.Append(ctx, m))
	}

	err := log.Append(ctx, core.Message{ID: "bad", Sender: core.SenderUser, Timestamp: epoch})
	gt.Error(t, err)
	gt.True(t, memory.IsInvalidArgument(err))

	got, err := log.ReadAll(ctx)
	gt.NoError(t, err)
	gt.A(t, got).Length(3)
	gt.Equal(t, got[0].Text, "A")
	gt.Equal(t, got[2].Text, "C")
	gt.Equal(t, got[1].Sender, core.SenderAgent)
	gt.True(t, got[2].Timestamp.Equal(epoch.Add(2*time.Second)))

	// Returned slice is a copy.
	got[0].Text = "changed"
	again, err := log.ReadAll(ctx)
	gt.NoError(t, err)
	gt.Equal(t, again[0].Text, "A")
}

func TestMemory(t *testing.T) {
	testLog(t, locallog.NewMemory(0))
}

func TestMemory_Capacity(t *testing.T) {
	ctx := context.Background()
	log := locallog.NewMemory(2)
	for _, m := range abc() {
		gt.NoError(t, log.Append(ctx, m))
	}

	got, err := log.ReadAll(ctx)
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	gt.Equal(t, got[0].Text, "B")
	gt.Equal(t, log.Len(), 2)
}

func TestSQLite(t *testing.T) {
	log, err := locallog.OpenSQLite(":memory:")
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = log.Close() })

	testLog(t, log)
}

func TestSQLite_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	log, err := locallog.OpenSQLite(path)
	gt.NoError(t, err).Required()
	msg := core.NewMessage(core.SenderUser, "survives restart", epoch)
	gt.NoError(t, log.Append(ctx, msg))
	gt.NoError(t, log.Append(ctx, msg))
	gt.NoError(t, log.Close())

	reopened, err := locallog.OpenSQLite(path)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.ReadAll(ctx)
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].ID, msg.ID)
}

func TestFallbackThroughOrchestrator(t *testing.T) {
	ctx := context.Background()
	log := locallog.NewMemory(0)
	for _, m := range abc() {
		gt.NoError(t, log.Append(ctx, m))
	}

	cfg := memory.DefaultConfig()
	cfg.StartupGrace = 0
	o, err := memory.New(nopEmbedder{}, downStore{}, log, memory.WithConfig(cfg))
	gt.NoError(t, err).Required()
	defer o.Close()

	got, err := o.GetRecentConversations(ctx, 2)
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	gt.Equal(t, got[0].Text, "C")
	gt.Equal(t, got[1].Text, "B")
}

type nopEmbedder struct{}

func (nopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}
func (nopEmbedder) Dimensions() int { return 1 }

type downStore struct{}

func (downStore) Add(ctx context.Context, rec *core.StoredRecord) error { return context.DeadlineExceeded }
func (downStore) Query(ctx context.Context, e []float32, q string, n int) ([]memory.Match, error) {
	return nil, context.DeadlineExceeded
}
func (downStore) ListAll(ctx context.Context, limit, offset int) (*memory.Page, error) {
	return nil, context.DeadlineExceeded
}
