package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEventsWS streams live turn events for one session over WebSocket.
// The session must belong to the caller's team; a brand-new session ID that
// the store has never seen is also accepted, so clients can subscribe before
// sending the first message.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, KindValidation, "session_id is required")
		return
	}

	if _, err := s.db.GetSession(r.Context(), p.TeamID, sessionID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeErr(w, err)
			return
		}
		taken, terr := s.db.SessionExists(r.Context(), sessionID)
		if terr != nil {
			writeErr(w, terr)
			return
		}
		if taken {
			// Owned by another team.
			writeErr(w, store.ErrNotFound)
			return
		}
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	unsubscribe := s.hub.Subscribe(sessionID, conn)
	defer unsubscribe()
	defer conn.Close()

	// Reads only pump control frames; the client never sends payloads.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
