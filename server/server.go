// Package server exposes a memory.Manager over HTTP and a websocket channel.
//
// Every stored message is also appended to the history log when one is
// configured, so recent history survives even while the vector store is
// down.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/httpapi"
	"github.com/becomeliminal/nim-memory/locallog"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// Server serves the memory API.
type Server struct {
	manager  memory.Manager
	history  locallog.Log
	defaults Defaults
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// Defaults fill metadata fields a client leaves blank.
type Defaults struct {
	Persona    string
	DeviceType string
}

// Option configures the server.
type Option func(*Server)

// WithHistory appends every stored message to log.
func WithHistory(log locallog.Log) Option {
	return func(s *Server) {
		s.history = log
	}
}

// WithDefaults sets the persona and device type used when a request omits
// them.
func WithDefaults(d Defaults) Option {
	return func(s *Server) {
		s.defaults = d
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server over manager.
func New(manager memory.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		logger:  logging.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Served to a local desktop shell whose origin varies by build.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.attachLogger)
	r.Use(httpapi.CORS)
	r.Use(httpapi.RequestID)
	r.Use(httpapi.Logger(s.logger))
	r.Use(httpapi.Recovery(s.logger))

	r.Get("/health", s.health)
	r.Get("/ws", s.serveWS)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", s.storeMessage)
		r.Post("/batch", s.storeMessages)
		r.Post("/search", s.search)
		r.Post("/context", s.conversationContext)
		r.Get("/recent", s.recent)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.cacheStats)
		r.Delete("/", s.clearCache)
	})

	r.Get("/session", s.getSession)
	r.Put("/session", s.setSession)
	r.Post("/availability/recheck", s.recheck)

	return r
}

func (s *Server) attachLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.With(r.Context(), s.logger)))
	})
}
