package httpapi

import (
	"net/http"
	"strconv"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

func reqIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, KindValidation, "invalid requirement id")
		return 0, false
	}
	return id, true
}

var requirementStatuses = map[string]bool{
	"incoming": true, "todo": true, "in_progress": true, "done": true, "blocked": true,
}

func (s *Server) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	status := r.URL.Query().Get("status")
	if status != "" && !requirementStatuses[status] {
		writeError(w, KindValidation, "unknown status "+status)
		return
	}
	reqs, err := s.db.ListRequirements(r.Context(), p.TeamID, status, limitParam(r, 100))
	if err != nil {
		writeErr(w, err)
		return
	}
	if reqs == nil {
		reqs = []store.Requirement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
}

type createRequirementRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (s *Server) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	var body createRequirementRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Title == "" {
		writeError(w, KindValidation, "title is required")
		return
	}
	status := body.Status
	if status == "" {
		status = "todo"
	}
	if !requirementStatuses[status] {
		writeError(w, KindValidation, "unknown status "+status)
		return
	}
	req := &store.Requirement{
		TeamID:      p.TeamID,
		ProjectID:   body.ProjectID,
		Title:       body.Title,
		Description: body.Description,
		Status:      status,
		Priority:    body.Priority,
	}
	if err := s.db.CreateRequirement(r.Context(), req); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type deliverRequest struct {
	ToTeamID    int64  `json:"to_team_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// handleDeliverRequirement hands a requirement to another team. The row
// materializes on the target team only, flagged incoming/pending; the path
// id names the source requirement for traceability but the delivered copy
// is a new row.
func (s *Server) handleDeliverRequirement(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if _, ok := reqIDParam(w, r); !ok {
		return
	}
	var body deliverRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ToTeamID == 0 || body.Title == "" {
		writeError(w, KindValidation, "to_team_id and title are required")
		return
	}
	if body.ToTeamID == p.TeamID {
		writeError(w, KindValidation, "cannot deliver to the same team")
		return
	}
	req := &store.Requirement{
		Title:       body.Title,
		Description: body.Description,
		Priority:    body.Priority,
	}
	if err := s.db.DeliverRequirement(r.Context(), p.TeamID, body.ToTeamID, req); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAcceptRequirement(w http.ResponseWriter, r *http.Request) {
	s.setDelivery(w, r, store.DeliveryAccepted)
}

func (s *Server) handleRejectRequirement(w http.ResponseWriter, r *http.Request) {
	s.setDelivery(w, r, store.DeliveryRejected)
}

func (s *Server) setDelivery(w http.ResponseWriter, r *http.Request, state string) {
	p := principalFrom(r)
	id, ok := reqIDParam(w, r)
	if !ok {
		return
	}
	if err := s.db.SetDeliveryState(r.Context(), p.TeamID, id, state); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"delivery_state": state})
}

func (s *Server) handleRequirementStatus(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	id, ok := reqIDParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !requirementStatuses[body.Status] {
		writeError(w, KindValidation, "unknown status "+body.Status)
		return
	}
	if err := s.db.SetRequirementStatus(r.Context(), p.TeamID, id, body.Status); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
}
