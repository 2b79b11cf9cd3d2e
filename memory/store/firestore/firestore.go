// Package firestore implements memory.VectorStore on Cloud Firestore using
// its native vector search (FindNearest with cosine distance).
//
// The embedding field needs a vector index, e.g.
//
//	gcloud firestore indexes composite create --collection-group=conversations \
//	  --query-scope=COLLECTION --field-config=field-path=embedding,vector-config='{"dimension":"768","flat":"{}"}'
package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

const (
	DefaultCollection = "conversations"

	fieldEmbedding = "embedding"
	fieldTimestamp = "timestamp_ms"
	fieldDistance  = "vector_distance"
)

type document struct {
	Text            string             `firestore:"text"`
	Sender          string             `firestore:"sender"`
	TimestampMs     int64              `firestore:"timestamp_ms"`
	SessionID       string             `firestore:"session_id"`
	Persona         string             `firestore:"persona"`
	DeviceType      string             `firestore:"device_type"`
	ToolsUsed       []string           `firestore:"tools_used"`
	MetaTimestampMs int64              `firestore:"meta_timestamp_ms"`
	Embedding       firestore.Vector32 `firestore:"embedding"`

	// Populated only on vector query results.
	Distance float64 `firestore:"vector_distance,omitempty"`
}

// Store is a Firestore-backed vector store.
type Store struct {
	client     *firestore.Client
	collection string
}

// Option configures a Store.
type Option func(*Store)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(s *Store) {
		s.collection = name
	}
}

// New connects to databaseID in projectID. clientOpts are passed to the
// Firestore client, e.g. option.WithCredentialsFile.
func New(ctx context.Context, projectID, databaseID string, opts []Option, clientOpts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project id is required", goerr.T(memory.ErrTagInvalidArgument))
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID), goerr.T(memory.ErrTagStoreUnavailable))
	}

	s := &Store{client: client, collection: DefaultCollection}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add creates the document for rec. Records are never overwritten.
func (s *Store) Add(ctx context.Context, rec *core.StoredRecord) error {
	if len(rec.Embedding) == 0 {
		return goerr.New("record has no embedding", goerr.V("id", rec.ID), goerr.T(memory.ErrTagWrite))
	}

	doc := toDocument(rec)
	if _, err := s.client.Collection(s.collection).Doc(rec.ID).Create(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to create conversation document",
			goerr.V("id", rec.ID), classify(err, goerr.T(memory.ErrTagWrite)))
	}
	return nil
}

// Query runs a cosine FindNearest over the embedding field.
func (s *Store) Query(ctx context.Context, embedding []float32, queryText string, limit int) ([]memory.Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	q := s.client.Collection(s.collection).FindNearest(
		fieldEmbedding,
		firestore.Vector32(embedding),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: fieldDistance},
	)
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run vector query",
			goerr.V("limit", limit), classify(err, goerr.T(memory.ErrTagQuery)))
	}

	matches := make([]memory.Match, 0, len(snaps))
	for _, snap := range snaps {
		var doc document
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("id", snap.Ref.ID), goerr.T(memory.ErrTagQuery))
		}
		matches = append(matches, memory.Match{
			Record:   fromDocument(snap.Ref.ID, &doc),
			Distance: doc.Distance,
		})
	}
	return matches, nil
}

// ListAll pages through the collection in timestamp order, oldest first.
func (s *Store) ListAll(ctx context.Context, limit, offset int) (*memory.Page, error) {
	col := s.client.Collection(s.collection)

	agg, err := col.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count conversations", classify(err, goerr.T(memory.ErrTagQuery)))
	}
	total, err := countValue(agg["total"])
	if err != nil {
		return nil, goerr.Wrap(err, "unexpected count result", goerr.T(memory.ErrTagQuery))
	}

	page := &memory.Page{Total: total}
	if limit <= 0 || offset >= total {
		return page, nil
	}

	snaps, err := col.OrderBy(fieldTimestamp, firestore.Asc).Offset(offset).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations",
			goerr.V("offset", offset), classify(err, goerr.T(memory.ErrTagQuery)))
	}
	for _, snap := range snaps {
		var doc document
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("id", snap.Ref.ID), goerr.T(memory.ErrTagQuery))
		}
		page.Records = append(page.Records, fromDocument(snap.Ref.ID, &doc))
	}
	return page, nil
}

// HealthCheck reads at most one document.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.Collection(s.collection).Limit(1).Documents(ctx).GetAll(); err != nil {
		return goerr.Wrap(err, "firestore health check failed", goerr.T(memory.ErrTagStoreUnavailable))
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func toDocument(rec *core.StoredRecord) *document {
	doc := &document{
		Text:        rec.Text,
		Sender:      string(rec.Sender),
		TimestampMs: rec.Timestamp.UnixMilli(),
		SessionID:   rec.Metadata.SessionID,
		Persona:     rec.Metadata.Persona,
		DeviceType:  rec.Metadata.DeviceType,
		ToolsUsed:   rec.Metadata.ToolsUsed,
		Embedding:   firestore.Vector32(rec.Embedding),
	}
	if !rec.Metadata.Timestamp.IsZero() {
		doc.MetaTimestampMs = rec.Metadata.Timestamp.UnixMilli()
	}
	return doc
}

func fromDocument(id string, doc *document) core.StoredRecord {
	rec := core.StoredRecord{
		ID:        id,
		Text:      doc.Text,
		Sender:    core.Sender(doc.Sender),
		Timestamp: time.UnixMilli(doc.TimestampMs).UTC(),
		Metadata: core.ConversationMetadata{
			SessionID:  doc.SessionID,
			Persona:    doc.Persona,
			DeviceType: doc.DeviceType,
			ToolsUsed:  doc.ToolsUsed,
		},
		Embedding: []float32(doc.Embedding),
	}
	if doc.MetaTimestampMs != 0 {
		rec.Metadata.Timestamp = time.UnixMilli(doc.MetaTimestampMs).UTC()
	}
	return rec
}

func countValue(v any) (int, error) {
	switch c := v.(type) {
	case *firestorepb.Value:
		return int(c.GetIntegerValue()), nil
	case int64:
		return int(c), nil
	}
	return 0, goerr.New("count has unexpected type", goerr.V("value", v))
}

// classify maps transport failures to ErrTagStoreUnavailable.
func classify(err error, fallback goerr.Option) goerr.Option {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Unauthenticated, codes.PermissionDenied:
		return goerr.T(memory.ErrTagStoreUnavailable)
	}
	return fallback
}

var (
	_ memory.VectorStore   = (*Store)(nil)
	_ memory.HealthChecker = (*Store)(nil)
)
