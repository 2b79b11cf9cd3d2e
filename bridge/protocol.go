// Package bridge speaks the single-endpoint JSON protocol the desktop shell
// uses to reach its vector store: every request is a POST with an "action"
// field.
//
// Server exposes any memory.VectorStore over the protocol. Client is a
// memory.VectorStore that talks to such a server, so the orchestrator can run
// in a different process from the store.
package bridge

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// Actions.
const (
	ActionAddConversation     = "add_conversation"
	ActionQueryConversations  = "query_conversations"
	ActionGetAllConversations = "get_all_conversations"
)

// Defaults applied by the server when a request leaves them unset.
const (
	DefaultNResults = 5
	DefaultLimit    = 100
)

// Flattened metadata keys. Result metadata also carries sender and timestamp.
const (
	MetaSender        = "sender"
	MetaTimestamp     = "timestamp"
	MetaSessionID     = "session_id"
	MetaPersona       = "persona"
	MetaDeviceType    = "device_type"
	MetaToolsUsed     = "tools_used"
	MetaMetaTimestamp = "meta_timestamp"
)

// Request is the union of all action payloads.
type Request struct {
	Action string `json:"action"`

	// add_conversation
	ID        string         `json:"id,omitempty"`
	Text      string         `json:"text,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// add_conversation, query_conversations
	Embedding []float32 `json:"embedding,omitempty"`

	// query_conversations
	QueryText string `json:"query_text,omitempty"`
	NResults  int    `json:"n_results,omitempty"`

	// get_all_conversations
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Result is one stored conversation in a response.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance *float64       `json:"distance,omitempty"`
}

// Response is the union of all action replies.
type Response struct {
	Success bool     `json:"success,omitempty"`
	ID      string   `json:"id,omitempty"`
	Results []Result `json:"results,omitempty"`
	Total   *int     `json:"total,omitempty"`
	Offset  *int     `json:"offset,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// DocumentID derives an ID for a conversation added without one.
func DocumentID(timestampMs int64, text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return fmt.Sprintf("conv_%d_%x", timestampMs, h.Sum64())
}

// EncodeMetadata flattens conversation metadata for the wire.
func EncodeMetadata(meta core.ConversationMetadata) map[string]any {
	out := map[string]any{
		MetaSessionID:  meta.SessionID,
		MetaPersona:    meta.Persona,
		MetaDeviceType: meta.DeviceType,
	}
	if len(meta.ToolsUsed) > 0 {
		out[MetaToolsUsed] = meta.ToolsUsed
	}
	if !meta.Timestamp.IsZero() {
		out[MetaMetaTimestamp] = meta.Timestamp.UnixMilli()
	}
	return out
}

// DecodeMetadata reads flattened metadata. Unknown keys are ignored and
// mistyped values are skipped.
func DecodeMetadata(m map[string]any) core.ConversationMetadata {
	meta := core.ConversationMetadata{
		SessionID:  stringValue(m[MetaSessionID]),
		Persona:    stringValue(m[MetaPersona]),
		DeviceType: stringValue(m[MetaDeviceType]),
	}
	switch tools := m[MetaToolsUsed].(type) {
	case []string:
		meta.ToolsUsed = tools
	case []any:
		for _, t := range tools {
			if s, ok := t.(string); ok {
				meta.ToolsUsed = append(meta.ToolsUsed, s)
			}
		}
	}
	if ms, ok := int64Value(m[MetaMetaTimestamp]); ok {
		meta.Timestamp = time.UnixMilli(ms).UTC()
	}
	return meta
}

// EncodeResult renders a record as a wire Result.
func EncodeResult(rec core.StoredRecord, distance *float64) Result {
	meta := EncodeMetadata(rec.Metadata)
	meta[MetaSender] = string(rec.Sender)
	meta[MetaTimestamp] = rec.Timestamp.UnixMilli()
	return Result{ID: rec.ID, Text: rec.Text, Metadata: meta, Distance: distance}
}

// DecodeResult reads a wire Result back into a record.
func DecodeResult(r Result) core.StoredRecord {
	rec := core.StoredRecord{
		ID:       r.ID,
		Text:     r.Text,
		Sender:   core.Sender(stringValue(r.Metadata[MetaSender])),
		Metadata: DecodeMetadata(r.Metadata),
	}
	if ms, ok := int64Value(r.Metadata[MetaTimestamp]); ok {
		rec.Timestamp = time.UnixMilli(ms).UTC()
	}
	return rec
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// int64Value accepts the float64 that encoding/json produces for numbers.
func int64Value(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
