package core

import (
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ConversationMetadata is attached to a message at write time and never
// mutated afterwards.
type ConversationMetadata struct {
	SessionID  string    `json:"session_id"`
	Persona    string    `json:"persona"`
	ToolsUsed  []string  `json:"tools_used,omitempty"`
	DeviceType string    `json:"device_type"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the required metadata fields. SessionID and Timestamp are
// not checked here because the orchestrator fills them in when absent.
func (m ConversationMetadata) Validate() error {
	if strings.TrimSpace(m.Persona) == "" {
		return goerr.New("metadata persona is empty", goerr.T(ErrTagInvalidArgument))
	}
	if strings.TrimSpace(m.DeviceType) == "" {
		return goerr.New("metadata device type is empty", goerr.T(ErrTagInvalidArgument))
	}
	for i, tool := range m.ToolsUsed {
		if strings.TrimSpace(tool) == "" {
			return goerr.New("metadata tool name is empty", goerr.V("index", i), goerr.T(ErrTagInvalidArgument))
		}
	}
	return nil
}

// Clone returns a deep copy so callers can't reach shared slices.
func (m ConversationMetadata) Clone() ConversationMetadata {
	m.ToolsUsed = slices.Clone(m.ToolsUsed)
	return m
}
