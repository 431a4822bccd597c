package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/agent"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/docs"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/policy"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/session"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	ProjectID *int64 `json:"project_id,omitempty"`

	SecurityPreset  string `json:"security_preset,omitempty"`
	EnableShell     bool   `json:"enable_shell,omitempty"`
	EnableWrite     bool   `json:"enable_write,omitempty"`
	EnableBrowser   bool   `json:"enable_browser,omitempty"`
	EnableDangerous bool   `json:"enable_dangerous,omitempty"`

	ShowReasoning bool     `json:"show_reasoning,omitempty"`
	Attachments   []string `json:"attachments,omitempty"` // file IDs
	Stream        bool     `json:"stream,omitempty"`
}

type chatResponse struct {
	SessionID string         `json:"session_id"`
	Assistant string         `json:"assistant"`
	Events    []events.Event `json:"events"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	cfg := s.Config()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, KindValidation, "malformed body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, KindValidation, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	root, err := s.workspaceRoot(r.Context(), p.TeamID, req.ProjectID)
	if err != nil {
		writeErr(w, err)
		return
	}

	prov, err := s.providers.Get(req.Provider)
	if err != nil {
		writeError(w, KindValidation, err.Error())
		return
	}
	// Fallback is decided once, here, from the static capability
	// declarations: the native provider hosts the generator tools and the
	// attachment reader.
	var fallback *events.ProviderFallback
	var missing []string
	caps := prov.Capabilities()
	if agent.NeedsDocGeneration(req.Message) && !caps.CanGenerateDocs {
		missing = append(missing, "docs")
	}
	if len(req.Attachments) > 0 && !caps.CanReadAttachments {
		missing = append(missing, "attachments")
	}
	if len(missing) > 0 {
		if resolved, switched := s.providers.ResolveFallback(prov); switched {
			fb := events.NewProviderFallback(prov.Name(), resolved.Name(), missing)
			fallback = &fb
			prov = resolved
		}
	}

	pol := policy.Derive(policy.Input{
		Ceiling: events.Capabilities{
			Shell:     cfg.Security.EnableShell,
			Write:     cfg.Security.EnableWrite,
			Browser:   cfg.Security.EnableBrowser,
			Dangerous: cfg.Security.AllowDangerous,
		},
		Preset: req.SecurityPreset,
		Toggles: events.Capabilities{
			Shell:     req.EnableShell,
			Write:     req.EnableWrite,
			Browser:   req.EnableBrowser,
			Dangerous: req.EnableDangerous,
		},
		Role:                p.Role,
		ProviderUnsandboxed: prov.Capabilities().CanRunUnsandboxed,
	})
	if pol.DangerousDenied {
		writeError(w, KindPermissionDenied, "dangerous mode is not permitted by the server")
		return
	}

	// Input attachments must belong to the calling team.
	for _, fileID := range req.Attachments {
		rec, err := s.db.GetFile(r.Context(), fileID)
		if err != nil || rec.TeamID != p.TeamID {
			writeError(w, KindNotFound, "unknown attachment "+fileID)
			return
		}
	}

	live, release, err := s.sessions.Acquire(r.Context(), p.TeamID, p.UserID, req.SessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer release()

	if req.Role != "" {
		live.Role = req.Role
	}
	live.Provider = prov.Name()
	if req.Model != "" {
		live.Model = req.Model
	}
	live.ProjectID = req.ProjectID
	model := live.Model
	if model == "" {
		model = cfg.Provider.Model
	}

	skills, err := s.db.ListSkills(r.Context(), p.TeamID, true)
	if err != nil {
		writeErr(w, err)
		return
	}
	system := agent.AssemblePrompt(live.Role, skills)
	budgeted, dropped := agent.ApplyBudget(system, live.Messages, agent.Budget{
		MaxMessages: cfg.Sessions.MaxSessionMessages,
		MaxChars:    cfg.Sessions.MaxContextChars,
	})
	userMsg := providers.Message{Role: providers.RoleUser, Content: req.Message}
	msgs := append(budgeted, userMsg)

	var sse *events.SSEWriter
	if req.Stream {
		sse, err = events.NewSSEWriter(w)
		if err != nil {
			writeError(w, KindValidation, err.Error())
			return
		}
	}
	trace := events.NewTrace(func(ev events.Event) {
		s.hub.Broadcast(req.SessionID, ev)
		if sse != nil {
			sse.Emit(ev)
		}
	})
	// The trim rides behind security_profile, which opens every trace.
	var trim *events.ContextTrim
	if dropped > 0 {
		ev := events.NewContextTrim(dropped, cfg.Sessions.MaxContextChars)
		trim = &ev
	}

	// Parseable quote requests skip the model entirely; the trace still
	// shows a regular tool call.
	if payload, ok := agent.ParseQuoteFastPath(req.Message); ok {
		s.quoteFastPath(w, r, live, root, model, userMsg, payload, pol, trim, trace, sse, req.Attachments)
		return
	}

	callCtx, span := s.tracer.Start(r.Context(), "chat.turn")
	defer span.End()
	if cfg.Provider.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, cfg.Provider.CallTimeout)
		defer cancel()
	}

	out, loopErr := s.loop().Run(callCtx, agent.TurnInput{
		Provider: prov,
		Model:    model,
		Fallback: fallback,
		Trim:     trim,
		Messages: msgs,
		ToolCtx:  s.toolContext(p, req.SessionID, root, req.ProjectID, pol.Effective),
		Policy:   pol,
		Trace:    trace,
	})

	if loopErr != nil && errors.Is(callCtx.Err(), context.Canceled) {
		// Client went away: keep the user message, never the half-finished
		// assistant round. Artifacts already registered stay registered.
		_ = s.commitTurn(live, model, userMsg, nil, trace, req.Attachments)
		return
	}

	if err := s.commitTurn(live, model, userMsg, out, trace, req.Attachments); err != nil {
		if sse != nil {
			sse.Done(false, "persistence failure")
			return
		}
		writeErr(w, err)
		return
	}

	if loopErr != nil {
		if sse != nil {
			sse.Done(false, loopErr.Error())
			return
		}
		writeErr(w, loopErr)
		return
	}

	if sse != nil {
		sse.Done(true, "")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: req.SessionID,
		Assistant: out.Assistant,
		Events:    trace.Events(),
	})
}

// quoteFastPath runs the XLSX quote generator directly and synthesizes the
// trace a model-driven turn would have produced.
func (s *Server) quoteFastPath(w http.ResponseWriter, r *http.Request, live *session.Live, root, model string, userMsg providers.Message, payload *docs.QuotePayload, pol policy.Result, trim *events.ContextTrim, trace *events.Trace, sse *events.SSEWriter, inputFileIDs []string) {
	p := principalFrom(r)
	args, err := json.Marshal(payload)
	if err != nil {
		writeErr(w, err)
		return
	}

	trace.Emit(events.NewSecurityProfile(pol.Preset, pol.Requested, pol.Effective))
	if trim != nil {
		trace.Emit(*trim)
	}
	trace.Emit(events.NewToolCall("doc_quote_xlsx_create", args))

	tc := s.toolContext(p, live.ID, root, live.ProjectID, pol.Effective)
	res := s.registry.Dispatch(r.Context(), tc, "doc_quote_xlsx_create", args)

	if res.IsError {
		trace.Emit(events.NewToolError("doc_quote_xlsx_create", res.ForLLM))
	} else {
		body, _ := json.Marshal(map[string]string{"output": res.ForLLM})
		trace.Emit(events.NewToolResult("doc_quote_xlsx_create", body))
	}
	for _, rec := range res.Artifacts {
		trace.Emit(events.NewTaskArtifact(rec.FileID, live.ID))
	}
	trace.Emit(events.NewAssistantMessage(res.ForLLM))

	out := &agent.TurnOutput{
		Assistant:   res.ForLLM,
		NewMessages: []providers.Message{{Role: providers.RoleAssistant, Content: res.ForLLM}},
		Artifacts:   res.Artifacts,
	}
	if err := s.commitTurn(live, model, userMsg, out, trace, inputFileIDs); err != nil {
		if sse != nil {
			sse.Done(false, "persistence failure")
			return
		}
		writeErr(w, err)
		return
	}
	if sse != nil {
		sse.Done(true, "")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: live.ID,
		Assistant: out.Assistant,
		Events:    trace.Events(),
	})
}

// commitTurn persists the turn atomically, then applies it to the live
// session and refreshes the JSON snapshot. The in-memory transcript is only
// mutated after a successful commit, so a failed commit leaves the session
// at its pre-turn state.
func (s *Server) commitTurn(live *session.Live, model string, userMsg providers.Message, out *agent.TurnOutput, trace *events.Trace, inputFileIDs []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	newMsgs := []providers.Message{userMsg}
	if out != nil {
		newMsgs = append(newMsgs, out.NewMessages...)
	}

	eventsJSON, err := events.MarshalEvents(trace.Events())
	if err != nil {
		return err
	}

	rows := make([]store.Message, 0, len(newMsgs))
	for i, m := range newMsgs {
		row := store.Message{
			SessionID:  live.ID,
			TeamID:     live.TeamID,
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			row.ToolCalls, _ = json.Marshal(m.ToolCalls)
		}
		// The trace rides on the terminal message of the turn.
		if i == len(newMsgs)-1 {
			row.EventsJSON = eventsJSON
		}
		rows = append(rows, row)
	}

	tc := store.TurnCommit{
		Session: store.Session{
			SessionID: live.ID,
			TeamID:    live.TeamID,
			UserID:    live.UserID,
			ProjectID: live.ProjectID,
			Role:      live.Role,
			Provider:  live.Provider,
			Model:     model,
			CreatedAt: live.CreatedAt,
		},
		Messages:     rows,
		InputFileIDs: inputFileIDs,
	}
	if out != nil {
		tc.Files = out.Artifacts
	}
	if err := s.db.CommitTurn(ctx, tc); err != nil {
		slog.Error("chat.commit_failed", "session_id", live.ID, "error", err)
		return err
	}

	live.Messages = append(live.Messages, newMsgs...)
	live.Model = model
	live.UpdatedAt = time.Now()

	snapDir := s.Config().Sessions.SnapshotDir
	if snapDir != "" {
		if err := session.WriteSnapshot(snapDir, live); err != nil {
			slog.Warn("chat.snapshot_failed", "session_id", live.ID, "error", err)
		}
	}
	return nil
}
