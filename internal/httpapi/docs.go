package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/docs"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// Direct generator endpoints. These run the same renderers the generator
// tools use, without a model in the loop.

type docResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
}

func (s *Server) registerDoc(w http.ResponseWriter, r *http.Request, base, ext, contentType string, body []byte) {
	p := principalFrom(r)
	rec := store.FileRecord{
		Kind:        store.FileKindGenerated,
		Filename:    fmt.Sprintf("%s-%d.%s", base, time.Now().Unix(), ext),
		ContentType: contentType,
		TeamID:      p.TeamID,
	}
	saved, err := s.artifacts.Register(r.Context(), rec, bytes.NewReader(body))
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

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, KindValidation, "malformed body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleDocPpt(w http.ResponseWriter, r *http.Request) {
	var p docs.DeckPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if len(p.Slides) == 0 {
		writeError(w, KindValidation, "slides are required")
		return
	}
	body, err := docs.Deck(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.registerDoc(w, r, "deck", "pptx",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation", body)
}

func (s *Server) handleDocQuote(w http.ResponseWriter, r *http.Request) {
	var p docs.QuotePayload
	if !decodeBody(w, r, &p) {
		return
	}
	if len(p.Items) == 0 {
		writeError(w, KindValidation, "items are required")
		return
	}
	body, err := docs.QuoteDOCX(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.registerDoc(w, r, "quote", "docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document", body)
}

func (s *Server) handleDocQuoteXlsx(w http.ResponseWriter, r *http.Request) {
	var p docs.QuotePayload
	if !decodeBody(w, r, &p) {
		return
	}
	if len(p.Items) == 0 {
		writeError(w, KindValidation, "items are required")
		return
	}
	body, err := docs.QuoteXLSX(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.registerDoc(w, r, "quote", "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", body)
}

func (s *Server) handleDocInspection(w http.ResponseWriter, r *http.Request) {
	var p docs.InspectionPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if len(p.Items) == 0 {
		writeError(w, KindValidation, "items are required")
		return
	}
	body, err := docs.InspectionDOCX(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.registerDoc(w, r, "inspection", "docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document", body)
}

func (s *Server) handleDocInspectionXlsx(w http.ResponseWriter, r *http.Request) {
	var p docs.InspectionPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if len(p.Items) == 0 {
		writeError(w, KindValidation, "items are required")
		return
	}
	body, err := docs.InspectionXLSX(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.registerDoc(w, r, "inspection", "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", body)
}

func (s *Server) handlePrototype(w http.ResponseWriter, r *http.Request) {
	var p docs.PrototypePayload
	if !decodeBody(w, r, &p) {
		return
	}
	if p.ProjectName == "" || len(p.Pages) == 0 {
		writeError(w, KindValidation, "project_name and pages are required")
		return
	}
	s.registerDoc(w, r, "prototype", "html", "text/html; charset=utf-8", docs.Prototype(p))
}
