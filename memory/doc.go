// Package memory stores chat messages in a vector store and answers relevance
// queries for prompt enrichment.
//
// The Orchestrator is the single entry point. It owns:
//   - QueryCache: bounded, TTL-expiring memo of (query, limit) -> ranked results
//   - AvailabilityProbe: lazy, latched health check of the backing store
//   - the fallback to a LocalLog when the store can't list recent history
//
// Collaborators are injected:
//   - Embedder: text -> vector (mock, ollama, gemini, onnx, cached)
//   - VectorStore: chromem-go (embedded), firestore, or the bridge client
//   - LocalLog: locallog.Memory or locallog.SQLite
//
// Store and embedding failures never reach the caller. Writes, searches and
// recency listings degrade to no-ops, empty results and the local log.
// Only misuse (invalid arguments) is reported as an error.
package memory
