// Package locallog keeps an ordered, always-available history of chat
// messages. It backs the recency fallback when the vector store is down.
package locallog

import (
	"context"
	"slices"
	"sync"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// Log is a local message history that can be appended to.
type Log interface {
	memory.LocalLog
	Append(ctx context.Context, msg core.Message) error
}

// Memory is an in-process Log. With a capacity set, the oldest messages are
// dropped once it is exceeded.
type Memory struct {
	mu       sync.RWMutex
	messages []core.Message
	capacity int
}

// NewMemory creates an in-process log. capacity <= 0 means unbounded.
func NewMemory(capacity int) *Memory {
	return &Memory{capacity: capacity}
}

// Append validates and records msg.
func (m *Memory) Append(ctx context.Context, msg core.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	if m.capacity > 0 && len(m.messages) > m.capacity {
		m.messages = slices.Clone(m.messages[len(m.messages)-m.capacity:])
	}
	return nil
}

// ReadAll returns a copy of the history in append order.
func (m *Memory) ReadAll(ctx context.Context) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.messages), nil
}

// Len returns the number of messages held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

var _ Log = (*Memory)(nil)
