package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/httpapi"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// Server serves the bridge protocol over a VectorStore.
type Server struct {
	store  memory.VectorStore
	logger *slog.Logger
}

// NewServer creates a server for store.
func NewServer(store memory.VectorStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{store: store, logger: logger}
}

// Handler returns the router: POST / for actions and GET /health.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.CORS)
	r.Use(httpapi.RequestID)
	r.Use(httpapi.Logger(s.logger))
	r.Use(httpapi.Recovery(s.logger))

	r.Post("/", s.handle)
	r.Get("/health", s.health)
	return r
}

// handle dispatches on action. Unknown actions answer 200 with an error body;
// malformed bodies and store failures answer 500, or 503 when the store is
// unreachable.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var (
		resp *Response
		err  error
	)
	switch req.Action {
	case ActionAddConversation:
		resp, err = s.addConversation(r.Context(), &req)
	case ActionQueryConversations:
		resp, err = s.queryConversations(r.Context(), &req)
	case ActionGetAllConversations:
		resp, err = s.getAllConversations(r.Context(), &req)
	default:
		httpapi.WriteJSON(w, http.StatusOK, Response{Error: "Unknown action: " + req.Action})
		return
	}

	if err != nil {
		logging.From(r.Context()).Warn("bridge action failed", "action", req.Action, "error", err)
		status := http.StatusInternalServerError
		switch {
		case memory.IsInvalidArgument(err):
			status = http.StatusBadRequest
		case memory.HasTag(err, memory.ErrTagStoreUnavailable):
			status = http.StatusServiceUnavailable
		}
		httpapi.WriteError(w, status, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) addConversation(ctx context.Context, req *Request) (*Response, error) {
	if req.Text == "" {
		return nil, goerr.New("text is required", goerr.T(memory.ErrTagInvalidArgument))
	}
	if len(req.Embedding) == 0 {
		return nil, goerr.New("embedding is required", goerr.T(memory.ErrTagInvalidArgument))
	}

	sender := core.SenderUser
	if req.Sender != "" {
		parsed, err := core.ParseSender(req.Sender)
		if err != nil {
			return nil, err
		}
		sender = parsed
	}

	id := req.ID
	if id == "" {
		id = DocumentID(req.Timestamp, req.Text)
	}

	rec := &core.StoredRecord{
		ID:        id,
		Text:      req.Text,
		Sender:    sender,
		Timestamp: time.UnixMilli(req.Timestamp).UTC(),
		Metadata:  DecodeMetadata(req.Metadata),
		Embedding: req.Embedding,
	}
	if err := s.store.Add(ctx, rec); err != nil {
		return nil, err
	}
	return &Response{Success: true, ID: id}, nil
}

func (s *Server) queryConversations(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Embedding) == 0 {
		return nil, goerr.New("embedding is required", goerr.T(memory.ErrTagInvalidArgument))
	}
	n := req.NResults
	if n <= 0 {
		n = DefaultNResults
	}

	matches, err := s.store.Query(ctx, req.Embedding, req.QueryText, n)
	if err != nil {
		return nil, err
	}

	resp := &Response{Results: make([]Result, 0, len(matches))}
	for _, m := range matches {
		d := m.Distance
		resp.Results = append(resp.Results, EncodeResult(m.Record, &d))
	}
	return resp, nil
}

func (s *Server) getAllConversations(ctx context.Context, req *Request) (*Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := max(req.Offset, 0)

	page, err := s.store.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Results: make([]Result, 0, len(page.Records)),
		Total:   &page.Total,
		Offset:  &offset,
		Limit:   &limit,
	}
	for _, rec := range page.Records {
		resp.Results = append(resp.Results, EncodeResult(rec, nil))
	}
	return resp, nil
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if hc, ok := s.store.(memory.HealthChecker); ok {
		if err := hc.HealthCheck(r.Context()); err != nil {
			httpapi.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	httpapi.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
