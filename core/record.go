package core

import (
	"slices"
	"time"
)

// StoredRecord is the vector-store resident form of a message.
// Records are created once and never updated.
type StoredRecord struct {
	ID        string               `json:"id"`
	Text      string               `json:"text"`
	Sender    Sender               `json:"sender"`
	Timestamp time.Time            `json:"timestamp"`
	Metadata  ConversationMetadata `json:"metadata"`
	Embedding []float32            `json:"embedding,omitempty"`
}

// RankedResult is a record scored against a query. Relevance is in [0,1],
// higher is more relevant.
type RankedResult struct {
	Text      string               `json:"text"`
	Sender    Sender               `json:"sender"`
	Timestamp time.Time            `json:"timestamp"`
	Metadata  ConversationMetadata `json:"metadata"`
	Relevance float64              `json:"relevance"`
}

// RelevanceFromDistance maps a store distance to a relevance score.
func RelevanceFromDistance(distance float64) float64 {
	r := 1 - distance
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// CloneResults copies results including their metadata slices.
func CloneResults(results []RankedResult) []RankedResult {
	if results == nil {
		return nil
	}
	out := make([]RankedResult, len(results))
	for i, r := range results {
		r.Metadata = r.Metadata.Clone()
		out[i] = r
	}
	return out
}

// FromMessage builds a record for msg. The embedding is left empty.
func FromMessage(msg Message, meta ConversationMetadata) *StoredRecord {
	return &StoredRecord{
		ID:        msg.ID,
		Text:      msg.Text,
		Sender:    msg.Sender,
		Timestamp: msg.Timestamp,
		Metadata:  meta.Clone(),
	}
}

// SortNewestFirst orders records by timestamp, newest first. Equal
// timestamps keep their relative order.
func SortNewestFirst(records []StoredRecord) {
	slices.SortStableFunc(records, func(a, b StoredRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
