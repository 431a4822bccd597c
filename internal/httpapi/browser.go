package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/policy"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

type browserRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url,omitempty"`
}

// browserGate applies the same checks the browser tools go through: the
// server ceiling must allow browsing and the caller must be owner or admin.
func (s *Server) browserGate(w http.ResponseWriter, r *http.Request) (*browserRequest, bool) {
	p := principalFrom(r)
	if !s.Config().Security.EnableBrowser {
		writeError(w, KindPermissionDenied, "browser is disabled on this server")
		return nil, false
	}
	if p.Role != policy.RoleOwner && p.Role != policy.RoleAdmin {
		writeError(w, KindPermissionDenied, "browser control requires an admin role")
		return nil, false
	}
	var req browserRequest
	if !decodeBody(w, r, &req) {
		return nil, false
	}
	if req.SessionID == "" {
		writeError(w, KindValidation, "session_id is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleBrowserStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.browserGate(w, r)
	if !ok {
		return
	}
	if err := s.browser.Start(r.Context(), req.SessionID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

func (s *Server) handleBrowserNavigate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.browserGate(w, r)
	if !ok {
		return
	}
	if req.URL == "" {
		writeError(w, KindValidation, "url is required")
		return
	}
	if err := s.browser.Navigate(r.Context(), req.SessionID, req.URL); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"navigated": true})
}

func (s *Server) handleBrowserScreenshot(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	req, ok := s.browserGate(w, r)
	if !ok {
		return
	}
	png, err := s.browser.Screenshot(r.Context(), req.SessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	rec := store.FileRecord{
		Kind:        store.FileKindGenerated,
		Filename:    fmt.Sprintf("screenshot-%d.png", time.Now().Unix()),
		ContentType: "image/png",
		TeamID:      p.TeamID,
		SessionID:   req.SessionID,
	}
	saved, err := s.artifacts.Register(r.Context(), rec, bytes.NewReader(png))
	if err != nil {
		writeErr(w, err)
		return
	}
	tok, err := s.tokens.Issue(saved.FileID, saved.TeamID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docResponse{
		FileID:      saved.FileID,
		Filename:    saved.Filename,
		DownloadURL: s.Config().Server.PublicBaseURL + "/files/" + saved.FileID + "?token=" + tok,
	})
}
