package server

import (
	"net/http"
	"strconv"

	"github.com/becomeliminal/nim-memory/httpapi"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// storeMessage handles POST /conversations
func (s *Server) storeMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	e, err := s.entry(req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.store(r.Context(), e); err != nil {
		writeErr(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, StoreResponse{ID: e.Message.ID})
}

// storeMessages handles POST /conversations/batch
func (s *Server) storeMessages(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.storeBatch(r.Context(), req.Messages)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

// search handles POST /conversations/search
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.manager.SearchConversations(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// conversationContext handles POST /conversations/context
func (s *Server) conversationContext(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	text, err := s.manager.GetConversationContext(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, ContextResponse{Context: text})
}

// recent handles GET /conversations/recent?limit=
func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpapi.WriteError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	records, err := s.manager.GetRecentConversations(r.Context(), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, RecentResponse{Records: records})
}

// cacheStats handles GET /cache/stats
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, s.manager.CacheStats())
}

// clearCache handles DELETE /cache
func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	s.manager.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// getSession handles GET /session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, SessionResponse{SessionID: s.manager.SessionID()})
}

// setSession handles PUT /session
func (s *Server) setSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.manager.SetSessionID(req.SessionID); err != nil {
		writeErr(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, SessionResponse{SessionID: s.manager.SessionID()})
}

// recheck handles POST /availability/recheck
func (s *Server) recheck(w http.ResponseWriter, r *http.Request) {
	s.manager.ForceRecheck()
	httpapi.WriteJSON(w, http.StatusOK, AvailabilityResponse{Availability: s.manager.Availability().String()})
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Availability: s.manager.Availability().String(),
		SessionID:    s.manager.SessionID(),
	})
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if memory.IsInvalidArgument(err) {
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.From(r.Context()).Error("request failed", "error", err)
	httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
}
