// Package httpapi exposes the service over HTTP: chat (buffered and SSE),
// history, files, direct generators, browser control, requirements, and the
// WebSocket event feed.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/agent"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/auth"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/browser"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/config"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/session"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/tools"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/workspace"
)

// Server wires every component behind a stdlib mux.
type Server struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	db        store.Store
	sessions  *session.Manager
	artifacts *artifacts.Store
	tokens    *artifacts.TokenIssuer
	registry  *tools.Registry
	providers *providers.Registry
	browser   *browser.Manager
	hub       *events.Hub
	auth      auth.Resolver
	tracer    trace.Tracer

	limMu    sync.Mutex
	limiters map[int64]*rate.Limiter
}

type Deps struct {
	Config    *config.Config
	DB        store.Store
	Sessions  *session.Manager
	Artifacts *artifacts.Store
	Tokens    *artifacts.TokenIssuer
	Registry  *tools.Registry
	Providers *providers.Registry
	Browser   *browser.Manager
	Hub       *events.Hub
	Auth      auth.Resolver
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:       d.Config,
		db:        d.DB,
		sessions:  d.Sessions,
		artifacts: d.Artifacts,
		tokens:    d.Tokens,
		registry:  d.Registry,
		providers: d.Providers,
		browser:   d.Browser,
		hub:       d.Hub,
		auth:      d.Auth,
		tracer:    otel.Tracer("httpapi"),
		limiters:  make(map[int64]*rate.Limiter),
	}
}

// Config returns the current config snapshot.
func (s *Server) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Reload swaps in the hot-reloadable subset of a freshly loaded config.
func (s *Server) Reload(next *config.Config) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.ApplySafeOverrides(next)
	slog.Info("config.reloaded")
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Downloads authenticate with the signed token, not a bearer.
	mux.HandleFunc("GET /files/{file_id}", s.handleDownload)
	mux.HandleFunc("GET /files/preview/{file_id}", s.handlePreview)

	authed := func(h http.HandlerFunc) http.HandlerFunc { return s.requireAuth(h) }

	mux.HandleFunc("POST /chat", authed(s.handleChat))

	mux.HandleFunc("GET /history/sessions", authed(s.handleListSessions))
	mux.HandleFunc("GET /history/sessions/{id}", authed(s.handleGetSession))
	mux.HandleFunc("DELETE /history/sessions/{id}", authed(s.handleDeleteSession))
	mux.HandleFunc("GET /history/files", authed(s.handleListFiles))
	mux.HandleFunc("GET /history/search", authed(s.handleSearch))

	mux.HandleFunc("POST /files/upload-image", authed(s.handleUploadImage))
	mux.HandleFunc("POST /files/upload-file", authed(s.handleUploadFile))

	mux.HandleFunc("POST /docs/ppt", authed(s.handleDocPpt))
	mux.HandleFunc("POST /docs/quote", authed(s.handleDocQuote))
	mux.HandleFunc("POST /docs/quote-xlsx", authed(s.handleDocQuoteXlsx))
	mux.HandleFunc("POST /docs/inspection", authed(s.handleDocInspection))
	mux.HandleFunc("POST /docs/inspection-xlsx", authed(s.handleDocInspectionXlsx))
	mux.HandleFunc("POST /prototype/generate", authed(s.handlePrototype))

	mux.HandleFunc("POST /browser/start", authed(s.handleBrowserStart))
	mux.HandleFunc("POST /browser/navigate", authed(s.handleBrowserNavigate))
	mux.HandleFunc("POST /browser/screenshot", authed(s.handleBrowserScreenshot))

	mux.HandleFunc("GET /requirements", authed(s.handleListRequirements))
	mux.HandleFunc("POST /requirements", authed(s.handleCreateRequirement))
	mux.HandleFunc("POST /requirements/{id}/deliver", authed(s.handleDeliverRequirement))
	mux.HandleFunc("POST /requirements/{id}/accept", authed(s.handleAcceptRequirement))
	mux.HandleFunc("POST /requirements/{id}/reject", authed(s.handleRejectRequirement))
	mux.HandleFunc("POST /requirements/{id}/status", authed(s.handleRequirementStatus))

	mux.HandleFunc("GET /events/ws", authed(s.handleEventsWS))

	return mux
}

type principalKey struct{}

// requireAuth resolves the bearer token, applies per-team rate limiting,
// and stashes the principal in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		p, err := s.auth.Resolve(r.Context(), bearer)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !s.allow(p.TeamID) {
			writeError(w, KindValidation, "rate limit exceeded")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next(w, r.WithContext(ctx))
	}
}

func principalFrom(r *http.Request) *auth.Principal {
	p, _ := r.Context().Value(principalKey{}).(*auth.Principal)
	return p
}

// allow enforces the per-team request budget.
func (s *Server) allow(teamID int64) bool {
	rpm := s.Config().Server.RateLimitRPM
	if rpm <= 0 {
		return true
	}
	s.limMu.Lock()
	lim, ok := s.limiters[teamID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
		s.limiters[teamID] = lim
	}
	s.limMu.Unlock()
	return lim.Allow()
}

// workspaceRoot resolves the workspace for a turn: project path when given
// (enabled, same team, allowlisted), else the team path, else the server
// default.
func (s *Server) workspaceRoot(ctx context.Context, teamID int64, projectID *int64) (string, error) {
	cfg := s.Config()
	if projectID != nil {
		proj, err := s.db.GetProject(ctx, teamID, *projectID)
		if err != nil {
			return "", err
		}
		if !proj.Enabled {
			return "", store.ErrNotFound
		}
		if _, err := workspace.CheckAllowlisted(proj.Path, cfg.Workspace.ProjectsAllowlist); err != nil {
			return "", err
		}
		return proj.Path, nil
	}
	team, err := s.db.GetTeam(ctx, teamID)
	if err != nil {
		return "", err
	}
	if team.WorkspacePath != "" {
		return team.WorkspacePath, nil
	}
	return cfg.Workspace.Default, nil
}

// toolContext assembles the per-call context handed to tool handlers.
func (s *Server) toolContext(p *auth.Principal, sessionID, root string, projectID *int64, caps events.Capabilities) *tools.Context {
	cfg := s.Config()
	return &tools.Context{
		TeamID:             p.TeamID,
		UserID:             p.UserID,
		SessionID:          sessionID,
		ProjectID:          projectID,
		WorkspaceRoot:      root,
		Caps:               caps,
		MaxFileReadChars:   cfg.Agent.MaxFileReadChars,
		MaxToolOutputChars: cfg.Agent.MaxToolOutputChars,
		Artifacts:          s.artifacts,
		Tokens:             s.tokens,
		Browser:            s.browser,
		PublicBaseURL:      cfg.Server.PublicBaseURL,
	}
}

func (s *Server) loop() *agent.Loop {
	return &agent.Loop{Registry: s.registry, MaxSteps: s.Config().Agent.MaxSteps}
}
