package tools_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/tools"
)

func newManager(t *testing.T) *memory.Orchestrator {
	t.Helper()
	store, err := chromem.New(chromem.WithLogger(logging.Discard()))
	gt.NoError(t, err).Required()

	cfg := memory.DefaultConfig()
	cfg.StartupGrace = 0
	o, err := memory.New(mock.New(), store, nil, memory.WithConfig(cfg), memory.WithLogger(logging.Discard()))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = o.Close() })

	meta := core.ConversationMetadata{Persona: "assistant", DeviceType: "desktop"}
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"the wifi password is on the fridge", "pick up milk", "call grandma"} {
		gt.NoError(t, o.StoreMessage(context.Background(),
			core.NewMessage(core.SenderUser, text, base.Add(time.Duration(i)*time.Minute)), meta)).Required()
	}
	return o
}

func TestSchema(t *testing.T) {
	s := tools.ObjectSchema(map[string]tools.Property{
		"query": tools.StringProperty("q"),
	}, "query")
	withThought := tools.WithThought(s)

	gt.Equal(t, len(s.Properties), 1)
	gt.Equal(t, len(withThought.Properties), 2)
	gt.Equal(t, withThought.Required, []string{"query"})
	gt.Equal(t, withThought.Properties["thought"]["type"], any("string"))

	gt.Equal(t, tools.ObjectSchema(nil).Properties, map[string]tools.Property{})
	gt.Equal(t, tools.StringEnumProperty("d", "a", "b")["enum"], any([]string{"a", "b"}))
}

func TestRegistry(t *testing.T) {
	r := tools.NewRegistry(tools.MemoryTools(newManager(t))...)
	gt.Equal(t, r.Names(), []string{tools.SearchConversationsTool, tools.RecentConversationsTool})

	defs := r.Definitions()
	gt.A(t, defs).Length(2)
	gt.Equal(t, defs[0].InputSchema.Required, []string{"query"})

	raw, err := json.Marshal(defs[1])
	gt.NoError(t, err)
	gt.S(t, string(raw)).Contains(`"input_schema":{"properties":{`)

	_, err = r.Execute(context.Background(), "transfer_funds", nil)
	gt.True(t, memory.IsInvalidArgument(err))
}

func TestSearchTool(t *testing.T) {
	ctx := context.Background()
	r := tools.NewRegistry(tools.MemoryTools(newManager(t))...)

	out, err := r.Execute(ctx, tools.SearchConversationsTool,
		json.RawMessage(`{"query":"pick up milk","limit":1,"thought":"user asked about errands"}`))
	gt.NoError(t, err).Required()
	results := out.([]core.RankedResult)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Text, "pick up milk")

	out, err = r.Execute(ctx, tools.SearchConversationsTool, json.RawMessage(`{"query":"milk","limit":500}`))
	gt.NoError(t, err)
	gt.A(t, out.([]core.RankedResult)).Length(3)

	_, err = r.Execute(ctx, tools.SearchConversationsTool, json.RawMessage(`{"limit":2}`))
	gt.True(t, memory.IsInvalidArgument(err))

	_, err = r.Execute(ctx, tools.SearchConversationsTool, json.RawMessage(`{"query":`))
	gt.True(t, memory.IsInvalidArgument(err))
}

func TestRecentTool(t *testing.T) {
	r := tools.NewRegistry(tools.MemoryTools(newManager(t))...)

	out, err := r.Execute(context.Background(), tools.RecentConversationsTool, json.RawMessage(`{"limit":2}`))
	gt.NoError(t, err).Required()
	records := out.([]core.StoredRecord)
	gt.A(t, records).Length(2)
	gt.Equal(t, records[0].Text, "call grandma")
	gt.Equal(t, records[1].Text, "pick up milk")

	out, err = r.Execute(context.Background(), tools.RecentConversationsTool, nil)
	gt.NoError(t, err)
	gt.A(t, out.([]core.StoredRecord)).Length(3)
}
