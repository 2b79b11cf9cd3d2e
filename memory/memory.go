package memory

import (
	"context"

	"github.com/becomeliminal/nim-memory/core"
)

// Embedder converts text to embedding vectors.
// Implementations: mock (testing), ollama, gemini, onnx, cached (wrapper).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Match is a single similarity hit returned by a VectorStore.
// Distance is 1 - cosine similarity; smaller is closer.
type Match struct {
	Record   core.StoredRecord
	Distance float64
}

// Page is one slice of a VectorStore listing.
type Page struct {
	Records []core.StoredRecord
	Total   int
}

// VectorStore is the durable backend for conversation records.
// Implementations: chromem (embedded), firestore, bridge client.
type VectorStore interface {
	// Add persists rec. rec.Embedding must be set.
	Add(ctx context.Context, rec *core.StoredRecord) error

	// Query returns up to limit records closest to embedding, closest first.
	Query(ctx context.Context, embedding []float32, queryText string, limit int) ([]Match, error)

	// ListAll returns records in store order starting at offset.
	ListAll(ctx context.Context, limit, offset int) (*Page, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LocalLog is the always-available ordered message history used when the
// vector store can't serve recency listings.
type LocalLog interface {
	ReadAll(ctx context.Context) ([]core.Message, error)
}

// Entry pairs a message with the metadata it is stored with.
type Entry struct {
	Message  core.Message              `json:"message"`
	Metadata core.ConversationMetadata `json:"metadata"`
}

// BatchResult summarizes a StoreMessages call.
type BatchResult struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Manager is the public surface of the memory layer. Engine and server
// depend on this rather than on the concrete Orchestrator.
type Manager interface {
	StoreMessage(ctx context.Context, msg core.Message, meta core.ConversationMetadata) error
	StoreMessages(ctx context.Context, entries []Entry) (BatchResult, error)
	SearchConversations(ctx context.Context, query string, limit int) ([]core.RankedResult, error)
	GetConversationContext(ctx context.Context, query string, limit int) (string, error)
	GetRecentConversations(ctx context.Context, limit int) ([]core.StoredRecord, error)
	CacheStats() CacheStats
	ClearCache()
	SessionID() string
	SetSessionID(id string) error
	ForceRecheck()
	Availability() ProbeState
}
