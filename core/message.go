package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ErrTagInvalidArgument marks errors caused by malformed caller input.
var ErrTagInvalidArgument = goerr.NewTag("invalid_argument")

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// ParseSender converts a raw string into a Sender.
// Unknown values are rejected instead of being coerced.
func ParseSender(s string) (Sender, error) {
	switch Sender(strings.ToLower(strings.TrimSpace(s))) {
	case SenderUser:
		return SenderUser, nil
	case SenderAgent:
		return SenderAgent, nil
	case SenderSystem:
		return SenderSystem, nil
	}
	return "", goerr.New("unknown sender", goerr.V("sender", s), goerr.T(ErrTagInvalidArgument))
}

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent || s == SenderSystem
}

func (s Sender) String() string {
	return string(s)
}

// Message is a single chat turn. It is owned by the caller and treated as
// immutable once stored.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with a fresh ID.
func NewMessage(sender Sender, text string, ts time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Text:      text,
		Sender:    sender,
		Timestamp: ts,
	}
}

// Validate checks the fields required to store a message.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return goerr.New("message text is empty", goerr.V("id", m.ID), goerr.T(ErrTagInvalidArgument))
	}
	if !m.Sender.Valid() {
		return goerr.New("unknown sender", goerr.V("sender", m.Sender), goerr.T(ErrTagInvalidArgument))
	}
	if m.Timestamp.IsZero() {
		return goerr.New("message timestamp is zero", goerr.V("id", m.ID), goerr.T(ErrTagInvalidArgument))
	}
	return nil
}
