package memory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Orchestrator coordinates embedding, storage, caching and fallback.
// It implements Manager and is safe for concurrent use.
type Orchestrator struct {
	embedder Embedder
	store    VectorStore
	localLog LocalLog
	checker  HealthChecker

	config Config
	logger *slog.Logger
	now    func() time.Time

	cache *QueryCache
	probe *AvailabilityProbe

	sessionMu sync.RWMutex
	sessionID string

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock sets the time source used by the cache.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithHealthChecker sets the checker used by the availability probe. When
// unset, the store is used if it implements HealthChecker, otherwise the
// store is assumed reachable.
func WithHealthChecker(hc HealthChecker) Option {
	return func(o *Orchestrator) {
		o.checker = hc
	}
}

// WithSessionID sets the initial session identifier.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// New creates an Orchestrator and starts its cache sweeper. Call Close to
// stop the sweeper. localLog may be nil, in which case the recency fallback
// yields nothing.
func New(embedder Embedder, store VectorStore, localLog LocalLog, opts ...Option) (*Orchestrator, error) {
	if embedder == nil {
		return nil, goerr.New("embedder is required", goerr.T(ErrTagInvalidArgument))
	}
	if store == nil {
		return nil, goerr.New("vector store is required", goerr.T(ErrTagInvalidArgument))
	}

	o := &Orchestrator{
		embedder: embedder,
		store:    store,
		localLog: localLog,
		config:   DefaultConfig(),
		logger:   logging.Default(),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid memory config", goerr.T(ErrTagInvalidArgument))
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.checker == nil {
		if hc, ok := store.(HealthChecker); ok {
			o.checker = hc
		}
	}

	o.cache = NewQueryCache(o.config.MaxCacheSize, o.config.CacheTTL, o.now)
	o.probe = NewAvailabilityProbe(o.checker, o.config.StartupGrace, o.config.CallTimeout, o.logger)

	go o.sweepLoop()
	return o, nil
}

// Close stops the cache sweeper. Collaborators are not closed.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		close(o.stop)
		<-o.done
	})
	return nil
}

func (o *Orchestrator) sweepLoop() {
	defer close(o.done)

	ticker := time.NewTicker(o.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			if n := o.cache.Sweep(); n > 0 {
				o.logger.Debug("swept expired query cache entries", "count", n)
			}
		}
	}
}

// StoreMessage persists msg, degrading silently when the store or embedder
// fails. Only validation errors are returned.
func (o *Orchestrator) StoreMessage(ctx context.Context, msg core.Message, meta core.ConversationMetadata) error {
	err := o.TryStoreMessage(ctx, msg, meta)
	if err == nil || IsInvalidArgument(err) {
		return err
	}
	o.logger.Warn("message not stored", "error", err, "sender", msg.Sender)
	return nil
}

// TryStoreMessage persists msg and reports why it wasn't stored. Errors are
// tagged with ErrTagInvalidArgument, ErrTagServiceUnavailable,
// ErrTagEmbedding, ErrTagStoreUnavailable or ErrTagWrite.
func (o *Orchestrator) TryStoreMessage(ctx context.Context, msg core.Message, meta core.ConversationMetadata) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	if o.probe.Check(ctx) == ProbeUnavailable {
		return goerr.New("memory store unavailable", goerr.T(ErrTagServiceUnavailable))
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if meta.SessionID == "" {
		meta.SessionID = o.SessionID()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = msg.Timestamp
	}

	embedCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	vec, err := o.embedder.Embed(embedCtx, msg.Text)
	cancel()
	if err != nil {
		return goerr.Wrap(err, "failed to embed message", goerr.V("id", msg.ID), goerr.T(ErrTagEmbedding))
	}
	if len(vec) == 0 {
		return goerr.New("embedder returned empty vector", goerr.V("id", msg.ID), goerr.T(ErrTagEmbedding))
	}

	rec := core.FromMessage(msg, meta)
	rec.Embedding = vec

	addCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	err = o.store.Add(addCtx, rec)
	cancel()
	if err != nil {
		tag := ErrTagWrite
		if isUnavailable(err) {
			tag = ErrTagStoreUnavailable
		}
		return goerr.Wrap(err, "failed to store message", goerr.V("id", msg.ID), goerr.T(tag))
	}

	if n := o.cache.InvalidateAll(); n > 0 {
		o.logger.Debug("query cache invalidated", "entries", n)
	}
	o.logger.Debug("message stored", "id", rec.ID, "sender", rec.Sender)
	return nil
}

// StoreMessages writes entries one at a time, pausing BatchDelay between
// writes. Every entry is validated before anything is written; after that,
// individual failures are counted rather than returned.
func (o *Orchestrator) StoreMessages(ctx context.Context, entries []Entry) (BatchResult, error) {
	for i, e := range entries {
		if err := e.Message.Validate(); err != nil {
			return BatchResult{}, goerr.Wrap(err, "invalid batch entry", goerr.V("index", i), goerr.T(ErrTagInvalidArgument))
		}
		if err := e.Metadata.Validate(); err != nil {
			return BatchResult{}, goerr.Wrap(err, "invalid batch entry", goerr.V("index", i), goerr.T(ErrTagInvalidArgument))
		}
	}

	var result BatchResult
	for i, e := range entries {
		if i > 0 && o.config.BatchDelay > 0 {
			if err := sleepContext(ctx, o.config.BatchDelay); err != nil {
				result.Failed += len(entries) - i
				o.logger.Warn("batch store interrupted", "error", err, "remaining", len(entries)-i)
				return result, nil
			}
		}

		err := o.TryStoreMessage(ctx, e.Message, e.Metadata)
		switch {
		case err == nil:
			result.Stored++
		case HasTag(err, ErrTagServiceUnavailable):
			result.Skipped++
		default:
			result.Failed++
			o.logger.Warn("batch entry not stored", "error", err, "index", i)
		}
	}
	return result, nil
}

// SearchConversations returns up to limit past messages ranked by relevance
// to query, most relevant first. Results are served from the query cache
// when possible. Store and embedding failures yield an empty list.
func (o *Orchestrator) SearchConversations(ctx context.Context, query string, limit int) ([]core.RankedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, goerr.New("query is empty", goerr.T(ErrTagInvalidArgument))
	}
	limit, err := o.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	if !o.probe.Available(ctx) {
		return []core.RankedResult{}, nil
	}

	key := CacheKey(query, limit)
	if cached, ok := o.cache.Get(key); ok {
		o.logger.Debug("query cache hit", "key", key)
		return cached, nil
	}

	results, err := o.search(ctx, query, limit)
	if err != nil {
		o.logger.Warn("conversation search failed", "error", err)
		return []core.RankedResult{}, nil
	}

	o.cache.Set(key, results)
	return results, nil
}

func (o *Orchestrator) search(ctx context.Context, query string, limit int) ([]core.RankedResult, error) {
	embedCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	vec, err := o.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.T(ErrTagEmbedding))
	}

	queryCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	matches, err := o.store.Query(queryCtx, vec, query, limit)
	cancel()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query store", goerr.T(ErrTagQuery))
	}

	results := make([]core.RankedResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, core.RankedResult{
			Text:      m.Record.Text,
			Sender:    m.Record.Sender,
			Timestamp: m.Record.Timestamp,
			Metadata:  m.Record.Metadata.Clone(),
			Relevance: core.RelevanceFromDistance(m.Distance),
		})
	}
	slices.SortStableFunc(results, func(a, b core.RankedResult) int {
		switch {
		case a.Relevance > b.Relevance:
			return -1
		case a.Relevance < b.Relevance:
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetConversationContext searches and renders the results with FormatContext.
// It returns "" when nothing relevant was found.
func (o *Orchestrator) GetConversationContext(ctx context.Context, query string, limit int) (string, error) {
	results, err := o.SearchConversations(ctx, query, limit)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// GetRecentConversations returns up to limit messages, newest first. The
// store is consulted when available; otherwise, or if listing fails, the
// local log is used.
func (o *Orchestrator) GetRecentConversations(ctx context.Context, limit int) ([]core.StoredRecord, error) {
	limit, err := o.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	if o.probe.Available(ctx) {
		records, err := o.listRecent(ctx, limit)
		if err == nil {
			return records, nil
		}
		o.logger.Warn("recent listing failed, using local log", "error", err)
	}
	return o.fallbackRecent(ctx, limit), nil
}

func (o *Orchestrator) listRecent(ctx context.Context, limit int) ([]core.StoredRecord, error) {
	var all []core.StoredRecord
	for offset := 0; ; {
		pageCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		page, err := o.store.ListAll(pageCtx, o.config.RecentPageSize, offset)
		cancel()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list store", goerr.V("offset", offset), goerr.T(ErrTagQuery))
		}
		all = append(all, page.Records...)
		offset += len(page.Records)
		if len(page.Records) == 0 || offset >= page.Total {
			break
		}
	}

	core.SortNewestFirst(all)
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]core.StoredRecord, len(all))
	for i, r := range all {
		r.Embedding = nil
		r.Metadata = r.Metadata.Clone()
		out[i] = r
	}
	return out, nil
}

func (o *Orchestrator) fallbackRecent(ctx context.Context, limit int) []core.StoredRecord {
	if o.localLog == nil {
		return []core.StoredRecord{}
	}
	msgs, err := o.localLog.ReadAll(ctx)
	if err != nil {
		o.logger.Warn("local log unreadable", "error", err)
		return []core.StoredRecord{}
	}

	records := make([]core.StoredRecord, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, core.StoredRecord{
			ID:        m.ID,
			Text:      m.Text,
			Sender:    m.Sender,
			Timestamp: m.Timestamp,
		})
	}
	core.SortNewestFirst(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

func (o *Orchestrator) resolveLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, goerr.New("limit must not be negative", goerr.V("limit", limit), goerr.T(ErrTagInvalidArgument))
	case limit == 0:
		return o.config.DefaultLimit, nil
	}
	return limit, nil
}

// CacheStats returns a snapshot of query cache counters.
func (o *Orchestrator) CacheStats() CacheStats {
	return o.cache.Stats()
}

// ClearCache drops every cached query.
func (o *Orchestrator) ClearCache() {
	n := o.cache.InvalidateAll()
	o.logger.Debug("query cache cleared", "entries", n)
}

// SessionID returns the identifier attached to messages stored without one.
func (o *Orchestrator) SessionID() string {
	o.sessionMu.RLock()
	defer o.sessionMu.RUnlock()
	return o.sessionID
}

// SetSessionID replaces the session identifier.
func (o *Orchestrator) SetSessionID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return goerr.New("session id is empty", goerr.T(ErrTagInvalidArgument))
	}
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	o.sessionID = id
	return nil
}

// ForceRecheck makes the next operation probe the store again.
func (o *Orchestrator) ForceRecheck() {
	o.probe.ForceRecheck()
}

// Availability returns the probe state without triggering a check.
func (o *Orchestrator) Availability() ProbeState {
	return o.probe.State()
}

var _ Manager = (*Orchestrator)(nil)
