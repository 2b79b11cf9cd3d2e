package server

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// MessageRequest is a message to store. Timestamps are Unix milliseconds; a
// zero timestamp means now.
type MessageRequest struct {
	ID         string   `json:"id,omitempty"`
	Text       string   `json:"text"`
	Sender     string   `json:"sender"`
	Timestamp  int64    `json:"timestamp,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Persona    string   `json:"persona,omitempty"`
	DeviceType string   `json:"device_type,omitempty"`
	ToolsUsed  []string `json:"tools_used,omitempty"`
}

// BatchRequest stores several messages in order.
type BatchRequest struct {
	Messages []MessageRequest `json:"messages"`
}

// QueryRequest drives search and context lookups. Limit 0 uses the manager
// default.
type QueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SessionRequest replaces the session identifier.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// StoreResponse acknowledges a stored message. Storage in the vector store
// is best effort, so the ID is returned even when that write was skipped.
type StoreResponse struct {
	ID string `json:"id"`
}

// SearchResponse carries ranked results, most relevant first.
type SearchResponse struct {
	Results []core.RankedResult `json:"results"`
}

// ContextResponse carries a formatted context block; empty means no context.
type ContextResponse struct {
	Context string `json:"context"`
}

// RecentResponse carries records, newest first.
type RecentResponse struct {
	Records []core.StoredRecord `json:"records"`
}

// SessionResponse reports the session identifier.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// AvailabilityResponse reports the store probe state.
type AvailabilityResponse struct {
	Availability string `json:"availability"`
}

// HealthResponse reports service liveness. The service is healthy while the
// store is down; availability says which mode it is in.
type HealthResponse struct {
	Status       string `json:"status"`
	Availability string `json:"availability"`
	SessionID    string `json:"session_id"`
}

// entry converts req into a validated message and metadata, filling the ID,
// timestamp and configured defaults.
func (s *Server) entry(req MessageRequest) (memory.Entry, error) {
	sender, err := core.ParseSender(req.Sender)
	if err != nil {
		return memory.Entry{}, err
	}

	ts := time.Now().UTC()
	if req.Timestamp > 0 {
		ts = time.UnixMilli(req.Timestamp).UTC()
	}
	msg := core.Message{
		ID:        strings.TrimSpace(req.ID),
		Text:      req.Text,
		Sender:    sender,
		Timestamp: ts,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	meta := core.ConversationMetadata{
		SessionID:  req.SessionID,
		Persona:    req.Persona,
		DeviceType: req.DeviceType,
		ToolsUsed:  req.ToolsUsed,
		Timestamp:  ts,
	}
	if meta.Persona == "" {
		meta.Persona = s.defaults.Persona
	}
	if meta.DeviceType == "" {
		meta.DeviceType = s.defaults.DeviceType
	}

	if err := msg.Validate(); err != nil {
		return memory.Entry{}, err
	}
	if err := meta.Validate(); err != nil {
		return memory.Entry{}, err
	}
	return memory.Entry{Message: msg, Metadata: meta}, nil
}

// store records e in the history log and the manager.
func (s *Server) store(ctx context.Context, e memory.Entry) error {
	s.appendHistory(ctx, e.Message)
	return s.manager.StoreMessage(ctx, e.Message, e.Metadata)
}

func (s *Server) appendHistory(ctx context.Context, msg core.Message) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, msg); err != nil {
		logging.From(ctx).Warn("history append failed", "id", msg.ID, "error", err)
	}
}

func (s *Server) storeBatch(ctx context.Context, reqs []MessageRequest) (memory.BatchResult, error) {
	if len(reqs) == 0 {
		return memory.BatchResult{}, goerr.New("no messages", goerr.T(memory.ErrTagInvalidArgument))
	}
	entries := make([]memory.Entry, 0, len(reqs))
	for i, req := range reqs {
		e, err := s.entry(req)
		if err != nil {
			return memory.BatchResult{}, goerr.Wrap(err, "invalid message in batch",
				goerr.V("index", i), goerr.T(memory.ErrTagInvalidArgument))
		}
		entries = append(entries, e)
	}
	for _, e := range entries {
		s.appendHistory(ctx, e.Message)
	}
	return s.manager.StoreMessages(ctx, entries)
}
