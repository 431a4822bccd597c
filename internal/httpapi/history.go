package httpapi

import (
	"net/http"
	"strconv"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/session"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	sessions, err := s.db.ListSessions(r.Context(), p.TeamID, p.UserID, limitParam(r, 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type sessionDetail struct {
	Session  *store.Session   `json:"session"`
	Messages []historyMessage `json:"messages"`
}

type historyMessage struct {
	Ordinal    int              `json:"ordinal"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Events     []map[string]any `json:"events,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	id := r.PathValue("id")

	sess, err := s.db.GetSession(r.Context(), p.TeamID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	msgs, err := s.db.ListMessages(r.Context(), p.TeamID, id, limitParam(r, 500))
	if err != nil {
		writeErr(w, err)
		return
	}

	out := sessionDetail{Session: sess, Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		hm := historyMessage{
			Ordinal:    m.Ordinal,
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.EventsJSON) > 0 {
			// Stored traces are surfaced as generic tagged objects.
			hm.Events, _ = events.DecodeEvents(m.EventsJSON)
		}
		out.Messages = append(out.Messages, hm)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	id := r.PathValue("id")

	if err := s.db.DeleteSession(r.Context(), p.TeamID, id); err != nil {
		writeErr(w, err)
		return
	}
	// Drop the live copy too so a stale transcript cannot resurface.
	s.sessions.Drop(id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	files, err := s.db.ListFiles(r.Context(), p.TeamID, limitParam(r, 100))
	if err != nil {
		writeErr(w, err)
		return
	}
	type fileOut struct {
		store.FileRecord
		DownloadURL string `json:"download_url"`
	}
	out := make([]fileOut, 0, len(files))
	for _, f := range files {
		tok, err := s.tokens.Issue(f.FileID, f.TeamID)
		if err != nil {
			writeErr(w, err)
			return
		}
		out = append(out, fileOut{
			FileRecord:  f,
			DownloadURL: s.Config().Server.PublicBaseURL + "/files/" + f.FileID + "?token=" + tok,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, KindValidation, "q is required")
		return
	}
	hits, err := session.SearchSnapshots(s.Config().Sessions.SnapshotDir, p.TeamID, q, limitParam(r, 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	if hits == nil {
		hits = []session.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}
