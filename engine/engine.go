// Package engine runs a Claude conversation turn with memory: it recalls
// related past conversations into the system prompt, lets the model call the
// memory tools, and records the exchange afterwards.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/locallog"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/tools"
)

// Defaults applied when the engine is not configured otherwise.
const (
	DefaultModel        = "claude-sonnet-4-20250514"
	DefaultMaxTokens    = 4096
	DefaultMaxTurns     = 8
	DefaultContextLimit = 5
)

// DefaultSystemPrompt is used when Input.SystemPrompt is empty.
const DefaultSystemPrompt = `You are a helpful personal assistant with memory of earlier conversations.
Past conversations that look relevant are included below when available; use them when they help and ignore them otherwise.
Use the search_conversations and recent_conversations tools when you need to recall something that is not shown.`

// ErrTagTurnLimit marks a run that did not finish within MaxTurns.
var ErrTagTurnLimit = goerr.NewTag("turn_limit")

// Messages is the part of the Anthropic client the engine uses.
// *anthropic.MessageService satisfies it.
type Messages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Engine runs conversation turns against Claude.
type Engine struct {
	client       Messages
	memory       memory.Manager
	history      locallog.Log
	registry     *tools.Registry
	logger       *slog.Logger
	model        string
	maxTokens    int64
	maxTurns     int
	contextLimit int
	now          func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithModel sets the Claude model.
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithMaxTokens caps the response tokens per call.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) {
		e.maxTokens = n
	}
}

// WithMaxTurns bounds the number of model calls per run.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		e.maxTurns = n
	}
}

// WithContextLimit sets how many past messages are recalled into the prompt.
func WithContextLimit(n int) Option {
	return func(e *Engine) {
		e.contextLimit = n
	}
}

// WithTools registers additional tools next to the memory tools.
func WithTools(ts ...tools.Tool) Option {
	return func(e *Engine) {
		for _, t := range ts {
			e.registry.Register(t)
		}
	}
}

// WithHistory appends every recorded message to history as well, so the
// recency fallback sees chat turns.
func WithHistory(history locallog.Log) Option {
	return func(e *Engine) {
		e.history = history
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used to stamp recorded messages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine. The memory tools are always registered.
func New(client Messages, manager memory.Manager, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		memory:       manager,
		registry:     tools.NewRegistry(tools.MemoryTools(manager)...),
		logger:       logging.Default(),
		model:        DefaultModel,
		maxTokens:    DefaultMaxTokens,
		maxTurns:     DefaultMaxTurns,
		contextLimit: DefaultContextLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *tools.Registry {
	return e.registry
}

// Input is one user turn.
type Input struct {
	// UserMessage is the user's message to answer.
	UserMessage string

	// History holds earlier turns of the current conversation, oldest first.
	// System messages are skipped.
	History []core.Message

	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string

	// Metadata is attached to both recorded messages. Persona and DeviceType
	// are required for recording.
	Metadata core.ConversationMetadata
}

// Usage counts tokens over all model calls of a run.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Output is the result of a run.
type Output struct {
	Text      string
	ToolsUsed []string
	Turns     int
	Usage     Usage

	// Recalled is the context block injected into the system prompt.
	Recalled string
}

// Run answers input. Memory failures never fail the run; model failures and
// exceeding the turn limit do.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserMessage) == "" {
		return nil, goerr.New("user message is empty", goerr.T(memory.ErrTagInvalidArgument))
	}
	startedAt := e.now().UTC()
	logger := e.logger.With("session_id", e.memory.SessionID())
	ctx = logging.With(ctx, logger)

	// Recall
	recalled, err := e.memory.GetConversationContext(ctx, input.UserMessage, e.contextLimit)
	if err != nil {
		logger.Warn("memory recall failed", "error", err)
		recalled = ""
	}

	// Enrich
	systemPrompt := input.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if recalled != "" {
		systemPrompt += "\n\n" + recalled
	}

	messages := historyToParams(input.History)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(input.UserMessage)))
	apiTools := toAPITools(e.registry.Definitions())

	out := &Output{Recalled: recalled}
	for {
		if out.Turns >= e.maxTurns {
			return out, goerr.New("exceeded maximum turns",
				goerr.V("max_turns", e.maxTurns), goerr.T(ErrTagTurnLimit))
		}
		out.Turns++

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(e.model),
			MaxTokens: e.maxTokens,
			Messages:  messages,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Tools:     apiTools,
		}
		resp, err := e.client.New(ctx, params)
		if err != nil {
			return out, goerr.Wrap(err, "claude API error", goerr.V("turn", out.Turns))
		}
		out.Usage.InputTokens += resp.Usage.InputTokens
		out.Usage.OutputTokens += resp.Usage.OutputTokens

		var (
			text        strings.Builder
			toolResults []anthropic.ContentBlockParamUnion
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				toolResults = append(toolResults, e.callTool(ctx, block.ID, block.Name, block.Input))
				if !slices.Contains(out.ToolsUsed, block.Name) {
					out.ToolsUsed = append(out.ToolsUsed, block.Name)
				}
			}
		}

		if len(toolResults) == 0 {
			out.Text = text.String()
			break
		}
		messages = append(messages, resp.ToParam(), anthropic.NewUserMessage(toolResults...))
	}

	e.record(ctx, input, out, startedAt)
	return out, nil
}

func (e *Engine) callTool(ctx context.Context, id, name string, input json.RawMessage) anthropic.ContentBlockParamUnion {
	start := time.Now()
	result, err := e.registry.Execute(ctx, name, input)
	logger := logging.From(ctx).With("tool", name, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		logger.Warn("tool call failed", "error", err)
		return anthropic.NewToolResultBlock(id, err.Error(), true)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		logger.Warn("tool result not encodable", "error", err)
		return anthropic.NewToolResultBlock(id, "tool result could not be encoded", true)
	}
	logger.Debug("tool call completed")
	return anthropic.NewToolResultBlock(id, string(raw), false)
}

// record stores the user message and the reply. Failures are logged only.
func (e *Engine) record(ctx context.Context, input *Input, out *Output, startedAt time.Time) {
	if strings.TrimSpace(out.Text) == "" {
		return
	}
	userMeta := input.Metadata.Clone()
	userMeta.ToolsUsed = nil
	agentMeta := input.Metadata.Clone()
	agentMeta.ToolsUsed = slices.Clone(out.ToolsUsed)

	entries := []memory.Entry{
		{Message: core.NewMessage(core.SenderUser, input.UserMessage, startedAt), Metadata: userMeta},
		{Message: core.NewMessage(core.SenderAgent, out.Text, e.now().UTC()), Metadata: agentMeta},
	}
	if e.history != nil {
		for _, entry := range entries {
			if err := e.history.Append(ctx, entry.Message); err != nil {
				logging.From(ctx).Warn("failed to append to history", "error", err, "id", entry.Message.ID)
			}
		}
	}

	res, err := e.memory.StoreMessages(ctx, entries)
	if err != nil {
		logging.From(ctx).Warn("failed to record conversation", "error", err)
		return
	}
	logging.From(ctx).Debug("conversation recorded", "stored", res.Stored, "skipped", res.Skipped, "failed", res.Failed)
}

func historyToParams(history []core.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		switch m.Sender {
		case core.SenderUser:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case core.SenderAgent:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return params
}

func toAPITools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: d.InputSchema.Properties,
					Required:   d.InputSchema.Required,
				},
			},
		})
	}
	return out
}
