package httpapi

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

const maxUploadBytes = 50 << 20

type uploadResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, store.FileKindImage)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, store.FileKindFile)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, kind string) {
	p := principalFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, KindValidation, "missing multipart field 'file'")
		return
	}
	defer file.Close()

	ct := header.Header.Get("Content-Type")
	if kind == store.FileKindImage && !artifacts.IsImageContentType(ct) {
		writeError(w, KindValidation, "not a supported image type: "+ct)
		return
	}

	rec := store.FileRecord{
		Kind:        kind,
		Filename:    filepath.Base(header.Filename),
		ContentType: ct,
		TeamID:      p.TeamID,
		SessionID:   r.FormValue("session_id"),
	}
	if pid := r.FormValue("project_id"); pid != "" {
		if id, err := strconv.ParseInt(pid, 10, 64); err == nil {
			rec.ProjectID = &id
		}
	}

	saved, err := s.artifacts.Register(r.Context(), rec, file)
	if err != nil {
		writeErr(w, err)
		return
	}

	tok, err := s.tokens.Issue(saved.FileID, saved.TeamID)
	if err != nil {
		writeErr(w, err)
		return
	}
	base := s.Config().Server.PublicBaseURL
	resp := uploadResponse{
		FileID:      saved.FileID,
		Filename:    saved.Filename,
		SizeBytes:   saved.SizeBytes,
		DownloadURL: base + "/files/" + saved.FileID + "?token=" + tok,
	}
	if kind == store.FileKindImage {
		resp.PreviewURL = base + "/files/preview/" + saved.FileID + "?token=" + tok
	}
	writeJSON(w, http.StatusOK, resp)
}

// openByToken verifies the download token and returns the record plus a
// reader. Token verification happens before any disk access. A valid token
// bound to a team that does not own the file is an authorization failure,
// not a missing file.
func (s *Server) openByToken(r *http.Request) (*store.FileRecord, io.ReadCloser, error) {
	fileID := r.PathValue("file_id")
	teamID, err := s.tokens.Verify(r.URL.Query().Get("token"), fileID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.db.GetFile(r.Context(), fileID)
	if err != nil {
		return nil, nil, err
	}
	if rec.TeamID != teamID {
		return nil, nil, artifacts.ErrBadToken
	}
	rd, err := s.artifacts.OpenFile(fileID)
	if err != nil {
		return nil, nil, err
	}
	return rec, rd, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, rd, err := s.openByToken(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer rd.Close()

	ct := rec.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.Filename+`"`)
	io.Copy(w, rd)
}

// handlePreview serves a thumbnail for image files; non-image records 404.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rec, rd, err := s.openByToken(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer rd.Close()

	if !artifacts.IsImageContentType(rec.ContentType) {
		writeError(w, KindNotFound, "no preview for this file type")
		return
	}
	src, err := io.ReadAll(rd)
	if err != nil {
		writeErr(w, err)
		return
	}
	thumb, err := artifacts.Thumbnail(src)
	if err != nil {
		writeError(w, KindNotFound, "preview unavailable")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(thumb)
}
