package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// Frame types accepted on /ws. Replies use the same type with a ".result"
// suffix, or "error".
const (
	FrameStore   = "store"
	FrameSearch  = "search"
	FrameContext = "context"
	FrameRecent  = "recent"
	FrameError   = "error"
)

// Frame is a client request on the websocket.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"` // echoed on the reply
	Message *MessageRequest `json:"message,omitempty"`
	Query   string          `json:"query,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// Reply answers one Frame. Empty result lists are omitted.
type Reply struct {
	Type      string              `json:"type"`
	ID        string              `json:"id,omitempty"`
	MessageID string              `json:"message_id,omitempty"`
	Results   []core.RankedResult `json:"results,omitempty"`
	Records   []core.StoredRecord `json:"records,omitempty"`
	Context   *string             `json:"context,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// serveWS handles GET /ws. Frames are answered in order on one connection.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logging.From(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	logger := logging.From(ctx)
	logger.Debug("websocket connected", "remote", r.RemoteAddr)

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		reply := s.dispatch(ctx, &f)
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, f *Frame) Reply {
	reply := Reply{Type: f.Type + ".result", ID: f.ID}
	var err error

	switch f.Type {
	case FrameStore:
		if f.Message == nil {
			err = goerr.New("store frame has no message", goerr.T(memory.ErrTagInvalidArgument))
			break
		}
		var e memory.Entry
		if e, err = s.entry(*f.Message); err == nil {
			err = s.store(ctx, e)
			reply.MessageID = e.Message.ID
		}
	case FrameSearch:
		reply.Results, err = s.manager.SearchConversations(ctx, f.Query, f.Limit)
	case FrameContext:
		var text string
		text, err = s.manager.GetConversationContext(ctx, f.Query, f.Limit)
		reply.Context = &text
	case FrameRecent:
		reply.Records, err = s.manager.GetRecentConversations(ctx, f.Limit)
	default:
		err = goerr.New("unknown frame type", goerr.V("type", f.Type), goerr.T(memory.ErrTagInvalidArgument))
	}

	if err != nil {
		logging.From(ctx).Debug("websocket frame rejected", "type", f.Type, "error", err)
		return Reply{Type: FrameError, ID: f.ID, Error: err.Error()}
	}
	return reply
}
