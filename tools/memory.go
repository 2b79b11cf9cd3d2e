package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// Memory tool names.
const (
	SearchConversationsTool = "search_conversations"
	RecentConversationsTool = "recent_conversations"
)

// MaxToolLimit bounds the limit a model may request.
const MaxToolLimit = 20

// MemoryTools returns the tools that let a model recall past conversations.
func MemoryTools(m memory.Manager) []Tool {
	return []Tool{
		&searchTool{manager: m},
		&recentTool{manager: m},
	}
}

type searchTool struct {
	manager memory.Manager
}

func (t *searchTool) Definition() Definition {
	return Definition{
		Name: SearchConversationsTool,
		Description: "Search past conversations with the user for messages related to a topic. " +
			"Returns the most relevant messages first. Use this when the user refers to something " +
			"discussed before that is not in the current conversation.",
		InputSchema: WithThought(ObjectSchema(map[string]Property{
			"query": StringProperty("What to look for, in natural language"),
			"limit": IntegerProperty("Maximum number of messages to return (default: 5)", 1, MaxToolLimit),
		}, "query")),
	}
}

func (t *searchTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in core.SearchInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, goerr.New("query is required", goerr.T(memory.ErrTagInvalidArgument))
	}
	logging.From(ctx).Debug("memory search tool", "query", in.Query, "thought", in.Thought)

	results, err := t.manager.SearchConversations(ctx, in.Query, clampLimit(in.Limit))
	if err != nil {
		return nil, err
	}
	return results, nil
}

type recentTool struct {
	manager memory.Manager
}

func (t *recentTool) Definition() Definition {
	return Definition{
		Name:        RecentConversationsTool,
		Description: "List the most recent messages exchanged with the user, newest first.",
		InputSchema: WithThought(ObjectSchema(map[string]Property{
			"limit": IntegerProperty("Maximum number of messages to return (default: 5)", 1, MaxToolLimit),
		})),
	}
}

func (t *recentTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in core.RecentInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	logging.From(ctx).Debug("memory recent tool", "limit", in.Limit, "thought", in.Thought)

	records, err := t.manager.GetRecentConversations(ctx, clampLimit(in.Limit))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func decodeInput(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return goerr.Wrap(err, "invalid tool input", goerr.T(memory.ErrTagInvalidArgument))
	}
	return nil
}

// clampLimit maps out-of-range limits into [0, MaxToolLimit]; 0 selects the
// manager default.
func clampLimit(n int) int {
	return max(0, min(n, MaxToolLimit))
}
