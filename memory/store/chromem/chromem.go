// Package chromem implements memory.VectorStore on chromem-go, an embedded
// pure-Go vector database. It runs in memory or persists to a directory.
package chromem

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "conversations"

// Metadata keys. chromem metadata is flat string pairs.
const (
	keySender        = "sender"
	keyTimestamp     = "timestamp"
	keySessionID     = "session_id"
	keyPersona       = "persona"
	keyDeviceType    = "device_type"
	keyToolsUsed     = "tools_used"
	keyMetaTimestamp = "meta_timestamp"
)

// Store wraps a chromem-go collection.
type Store struct {
	db     *chromem.DB
	col    *chromem.Collection
	logger *slog.Logger

	collection string
	path       string
	compress   bool

	mu   sync.RWMutex
	dims int
}

// Option configures a Store.
type Option func(*Store)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(s *Store) {
		s.collection = name
	}
}

// WithDimensions fixes the embedding size up front. Without it the size is
// learned from the first Add, which leaves a reopened persistent store
// unable to list until something new is written.
func WithDimensions(n int) Option {
	return func(s *Store) {
		s.dims = n
	}
}

// WithPersistence stores documents under path, optionally gzip-compressed.
func WithPersistence(path string, compress bool) Option {
	return func(s *Store) {
		s.path = path
		s.compress = compress
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a chromem-based store.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		collection: DefaultCollection,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.path == "" {
		s.db = chromem.NewDB()
	} else {
		db, err := chromem.NewPersistentDB(s.path, s.compress)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem db",
				goerr.V("path", s.path), goerr.T(memory.ErrTagStoreUnavailable))
		}
		s.db = db
	}

	// nil embedding func: embeddings are always supplied by the caller.
	col, err := s.db.GetOrCreateCollection(s.collection, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create collection",
			goerr.V("collection", s.collection), goerr.T(memory.ErrTagStoreUnavailable))
	}
	s.col = col

	s.logger.Debug("chromem store ready",
		"collection", s.collection, "path", s.path, "documents", col.Count())
	return s, nil
}

// Add saves rec with its embedding.
func (s *Store) Add(ctx context.Context, rec *core.StoredRecord) error {
	if len(rec.Embedding) == 0 {
		return goerr.New("record has no embedding", goerr.V("id", rec.ID), goerr.T(memory.ErrTagWrite))
	}
	if err := s.learnDimensions(len(rec.Embedding)); err != nil {
		return goerr.Wrap(err, "embedding size mismatch", goerr.V("id", rec.ID), goerr.T(memory.ErrTagWrite))
	}

	meta, err := encodeMetadata(rec)
	if err != nil {
		return goerr.Wrap(err, "failed to encode metadata", goerr.V("id", rec.ID), goerr.T(memory.ErrTagWrite))
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: slices.Clone(rec.Embedding),
		Metadata:  meta,
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", rec.ID), goerr.T(memory.ErrTagWrite))
	}

	s.logger.Debug("chromem document added", "id", rec.ID, "sender", rec.Sender)
	return nil
}

// Query retrieves records by cosine similarity, closest first.
func (s *Store) Query(ctx context.Context, embedding []float32, queryText string, limit int) ([]memory.Match, error) {
	// chromem-go requires nResults <= collection size
	n := min(limit, s.col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "chromem query failed", goerr.V("limit", n), goerr.T(memory.ErrTagQuery))
	}

	matches := make([]memory.Match, 0, len(results))
	for _, r := range results {
		rec, err := decodeResult(r)
		if err != nil {
			s.logger.Warn("skipping undecodable document", "id", r.ID, "error", err)
			continue
		}
		matches = append(matches, memory.Match{
			Record:   rec,
			Distance: 1 - float64(r.Similarity),
		})
	}
	return matches, nil
}

// ListAll returns records ordered by timestamp, oldest first.
//
// chromem-go has no scan API, so every document is fetched with a query
// against a fixed basis vector and then ordered.
func (s *Store) ListAll(ctx context.Context, limit, offset int) (*memory.Page, error) {
	total := s.col.Count()
	page := &memory.Page{Total: total}
	if total == 0 || limit <= 0 || offset >= total {
		return page, nil
	}

	dims := s.dimensions()
	if dims == 0 {
		return nil, goerr.New("embedding size unknown", goerr.V("documents", total), goerr.T(memory.ErrTagQuery))
	}
	basis := make([]float32, dims)
	basis[0] = 1

	results, err := s.col.QueryEmbedding(ctx, basis, total, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "chromem scan failed", goerr.T(memory.ErrTagQuery))
	}

	records := make([]core.StoredRecord, 0, len(results))
	for _, r := range results {
		rec, err := decodeResult(r)
		if err != nil {
			s.logger.Warn("skipping undecodable document", "id", r.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b core.StoredRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if offset >= len(records) {
		return page, nil
	}
	end := min(offset+limit, len(records))
	page.Records = records[offset:end]
	return page, nil
}

// HealthCheck always succeeds; the database is in-process.
func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.col.Count()
}

// Close releases resources. Persistent stores write through on every Add,
// so there is nothing to flush.
func (s *Store) Close() error {
	return nil
}

func (s *Store) dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

func (s *Store) learnDimensions(n int) error {
	s.mu.RLock()
	dims := s.dims
	s.mu.RUnlock()
	if dims == n {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if s.dims == 0 {
		s.dims = n
		return nil
	}
	if s.dims != n {
		return goerr.New("embedding size differs from collection", goerr.V("want", s.dims), goerr.V("got", n))
	}
	return nil
}

func encodeMetadata(rec *core.StoredRecord) (map[string]string, error) {
	meta := map[string]string{
		keySender:     string(rec.Sender),
		keyTimestamp:  strconv.FormatInt(rec.Timestamp.UnixMilli(), 10),
		keySessionID:  rec.Metadata.SessionID,
		keyPersona:    rec.Metadata.Persona,
		keyDeviceType: rec.Metadata.DeviceType,
	}
	if !rec.Metadata.Timestamp.IsZero() {
		meta[keyMetaTimestamp] = strconv.FormatInt(rec.Metadata.Timestamp.UnixMilli(), 10)
	}
	if len(rec.Metadata.ToolsUsed) > 0 {
		raw, err := json.Marshal(rec.Metadata.ToolsUsed)
		if err != nil {
			return nil, err
		}
		meta[keyToolsUsed] = string(raw)
	}
	return meta, nil
}

func decodeResult(r chromem.Result) (core.StoredRecord, error) {
	ts, err := parseMillis(r.Metadata[keyTimestamp])
	if err != nil {
		return core.StoredRecord{}, goerr.Wrap(err, "bad timestamp", goerr.V("id", r.ID))
	}

	rec := core.StoredRecord{
		ID:        r.ID,
		Text:      r.Content,
		Sender:    core.Sender(r.Metadata[keySender]),
		Timestamp: ts,
		Metadata: core.ConversationMetadata{
			SessionID:  r.Metadata[keySessionID],
			Persona:    r.Metadata[keyPersona],
			DeviceType: r.Metadata[keyDeviceType],
		},
		Embedding: r.Embedding,
	}
	if raw := r.Metadata[keyMetaTimestamp]; raw != "" {
		if mts, err := parseMillis(raw); err == nil {
			rec.Metadata.Timestamp = mts
		}
	}
	if raw := r.Metadata[keyToolsUsed]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata.ToolsUsed); err != nil {
			return core.StoredRecord{}, goerr.Wrap(err, "bad tools_used", goerr.V("id", r.ID))
		}
	}
	return rec, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

var (
	_ memory.VectorStore   = (*Store)(nil)
	_ memory.HealthChecker = (*Store)(nil)
)
