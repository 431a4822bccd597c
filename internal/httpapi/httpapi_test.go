package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/auth"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/config"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/session"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/tools"
)

const testSecret = "test-secret"

// chatWire is the decoded /chat response; events come back as generic
// tagged maps.
type chatWire struct {
	SessionID string           `json:"session_id"`
	Assistant string           `json:"assistant"`
	Events    []map[string]any `json:"events"`
}

// memStore covers the store surface the HTTP layer exercises.
type memStore struct {
	store.Store

	mu          sync.Mutex
	memberships map[[2]int64]string // (userID, teamID) -> role
	teams       map[int64]*store.Team
	sessions    map[string]*store.Session
	files       map[string]store.FileRecord
	commits     []store.TurnCommit
	reqs        map[int64]*store.Requirement
	nextReqID   int64
}

func newMemStore() *memStore {
	return &memStore{
		memberships: map[[2]int64]string{},
		teams:       map[int64]*store.Team{},
		sessions:    map[string]*store.Session{},
		files:       map[string]store.FileRecord{},
		reqs:        map[int64]*store.Requirement{},
	}
}

func (m *memStore) GetMembership(_ context.Context, userID, teamID int64) (*store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.memberships[[2]int64{userID, teamID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Membership{UserID: userID, TeamID: teamID, Role: role}, nil
}

func (m *memStore) GetTeam(_ context.Context, teamID int64) (*store.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListSkills(context.Context, int64, bool) ([]store.Skill, error) {
	return nil, nil
}

func (m *memStore) GetSession(_ context.Context, teamID int64, sessionID string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.TeamID != teamID {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) SessionExists(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok, nil
}

func (m *memStore) ListMessages(context.Context, int64, string, int) ([]store.Message, error) {
	return nil, nil
}

func (m *memStore) ListSessions(_ context.Context, teamID, userID int64, _ int) ([]store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Session
	for _, s := range m.sessions {
		if s.TeamID == teamID && s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) DeleteSession(_ context.Context, teamID int64, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.TeamID != teamID {
		return store.ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *memStore) CommitTurn(_ context.Context, tc store.TurnCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, tc)
	sess := tc.Session
	m.sessions[sess.SessionID] = &sess
	return nil
}

func (m *memStore) InsertFile(_ context.Context, rec store.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.files[rec.FileID] = rec
	return nil
}

func (m *memStore) GetFile(_ context.Context, fileID string) (*store.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[fileID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *memStore) ListFiles(_ context.Context, teamID int64, _ int) ([]store.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.FileRecord
	for _, rec := range m.files {
		if rec.TeamID == teamID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) CreateRequirement(_ context.Context, r *store.Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReqID++
	r.ID = m.nextReqID
	cp := *r
	m.reqs[r.ID] = &cp
	return nil
}

func (m *memStore) ListRequirements(_ context.Context, teamID int64, status string, _ int) ([]store.Requirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Requirement
	for _, r := range m.reqs {
		if r.TeamID == teamID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{PublicBaseURL: "http://localhost:8080"},
		Provider: config.ProviderConfig{
			Default: "mock",
			Model:   "test-model",
		},
		Workspace: config.WorkspaceConfig{Default: t.TempDir()},
		Security: config.SecurityConfig{
			EnableShell:   true,
			EnableWrite:   true,
			EnableBrowser: false,
			// AllowDangerous stays false: the dangerous ceiling test relies
			// on it.
		},
		Sessions: config.SessionsConfig{
			TTL:                time.Minute,
			MaxSessions:        16,
			MaxSessionMessages: 100,
			MaxContextChars:    100000,
			SnapshotDir:        t.TempDir(),
		},
		Agent: config.AgentConfig{
			MaxSteps:           5,
			MaxToolOutputChars: 4000,
			MaxFileReadChars:   4000,
		},
		Auth: config.AuthConfig{Secret: testSecret, DownloadTokenTTL: time.Minute},
	}
}

type harness struct {
	srv  *Server
	db   *memStore
	mock *providers.Mock
	h    http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig(t)
	db := newMemStore()
	db.teams[1] = &store.Team{ID: 1, Name: "alpha"}
	db.teams[2] = &store.Team{ID: 2, Name: "beta"}
	db.memberships[[2]int64{10, 1}] = "admin"
	db.memberships[[2]int64{11, 1}] = "member"
	db.memberships[[2]int64{20, 2}] = "owner"

	sessions, err := session.NewManager(db, cfg.Sessions.MaxSessions, cfg.Sessions.TTL, cfg.Sessions.MaxSessionMessages)
	if err != nil {
		t.Fatal(err)
	}
	art, err := artifacts.New(t.TempDir(), db)
	if err != nil {
		t.Fatal(err)
	}

	mock := &providers.Mock{Queue: []*providers.Response{{Content: "hello there"}}}
	reg := providers.NewRegistry("mock")
	reg.Register(mock)

	srv := NewServer(Deps{
		Config:    cfg,
		DB:        db,
		Sessions:  sessions,
		Artifacts: art,
		Tokens:    artifacts.NewTokenIssuer(testSecret, time.Minute),
		Registry:  tools.NewRegistry(),
		Providers: reg,
		Hub:       events.NewHub(),
		Auth:      auth.NewJWTResolver(testSecret, db),
	})
	return &harness{srv: srv, db: db, mock: mock, h: srv.Handler()}
}

func (h *harness) bearer(t *testing.T, userID, teamID int64) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(testSecret, userID, teamID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func (h *harness) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "POST", "/chat", "", map[string]string{"message": "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	var apiErr APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil || apiErr.Kind != KindAuth {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestChatHappyPath(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "POST", "/chat", h.bearer(t, 10, 1), map[string]any{
		"message": "hi",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp chatWire
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Assistant != "hello there" || resp.SessionID == "" {
		t.Errorf("resp = %+v", resp)
	}

	// The turn was committed: user + assistant messages.
	if len(h.db.commits) != 1 {
		t.Fatalf("commits = %d", len(h.db.commits))
	}
	tc := h.db.commits[0]
	if len(tc.Messages) != 2 || tc.Messages[0].Role != "user" || tc.Messages[1].Role != "assistant" {
		t.Errorf("committed messages = %+v", tc.Messages)
	}
	if len(tc.Messages[1].EventsJSON) == 0 {
		t.Error("terminal message has no event trace")
	}
}

func TestChatDangerousDenied(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "POST", "/chat", h.bearer(t, 10, 1), map[string]any{
		"message":          "hi",
		"security_preset":  "custom",
		"enable_dangerous": true,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	// Nothing was committed for a denied turn.
	if len(h.db.commits) != 0 {
		t.Error("denied turn was committed")
	}
}

func TestChatSessionBusy(t *testing.T) {
	h := newHarness(t)
	// Acquire the session directly so the HTTP turn collides with it.
	_, release, err := h.srv.sessions.Acquire(context.Background(), 1, 10, "sess-busy")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	rec := h.do(t, "POST", "/chat", h.bearer(t, 10, 1), map[string]any{
		"message":    "hi",
		"session_id": "sess-busy",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestChatCrossTeamSessionNotFound(t *testing.T) {
	h := newHarness(t)
	// Team 1 creates the session.
	rec := h.do(t, "POST", "/chat", h.bearer(t, 10, 1), map[string]any{
		"message":    "hi",
		"session_id": "shared-id",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed turn failed: %d %s", rec.Code, rec.Body.String())
	}
	// Team 2 tries to reuse the ID.
	rec = h.do(t, "POST", "/chat", h.bearer(t, 20, 2), map[string]any{
		"message":    "hi",
		"session_id": "shared-id",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestDownloadTokenScoping(t *testing.T) {
	h := newHarness(t)
	saved, err := h.srv.artifacts.Register(context.Background(), store.FileRecord{
		Kind: store.FileKindFile, Filename: "a.txt", ContentType: "text/plain", TeamID: 1,
	}, strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	tok, err := h.srv.tokens.Issue(saved.FileID, 1)
	if err != nil {
		t.Fatal(err)
	}

	rec := h.do(t, "GET", "/files/"+saved.FileID+"?token="+tok, "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "payload" {
		t.Errorf("download: %d %q", rec.Code, rec.Body.String())
	}

	// Token minted for a different file does not open this one.
	otherTok, _ := h.srv.tokens.Issue("someotherfileid", 1)
	rec = h.do(t, "GET", "/files/"+saved.FileID+"?token="+otherTok, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("mismatched token: %d", rec.Code)
	}

	// Valid token bound to a sibling team: authorization failure, not 404.
	siblingTok, _ := h.srv.tokens.Issue(saved.FileID, 2)
	rec = h.do(t, "GET", "/files/"+saved.FileID+"?token="+siblingTok, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("sibling-team token: %d, want 403", rec.Code)
	}

	// No token at all.
	rec = h.do(t, "GET", "/files/"+saved.FileID, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("missing token: %d", rec.Code)
	}
}

func TestRequirementsLifecycle(t *testing.T) {
	h := newHarness(t)
	bearer := h.bearer(t, 10, 1)

	rec := h.do(t, "POST", "/requirements", bearer, map[string]any{
		"title":    "Build the export",
		"priority": "high",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created store.Requirement
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 || created.Status != "todo" {
		t.Errorf("created = %+v", created)
	}

	rec = h.do(t, "GET", "/requirements", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var listed struct {
		Requirements []store.Requirement `json:"requirements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Requirements) != 1 {
		t.Errorf("listed = %+v", listed)
	}

	// Other team sees nothing.
	rec = h.do(t, "GET", "/requirements", h.bearer(t, 20, 2), nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Requirements) != 0 {
		t.Error("requirement leaked across teams")
	}
}

func TestListSessions(t *testing.T) {
	h := newHarness(t)
	bearer := h.bearer(t, 10, 1)
	rec := h.do(t, "POST", "/chat", bearer, map[string]any{"message": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed turn failed: %d", rec.Code)
	}

	rec = h.do(t, "GET", "/history/sessions", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var listed struct {
		Sessions []store.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Sessions) != 1 {
		t.Errorf("sessions = %+v", listed)
	}
}

func TestBrowserDisabled(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "POST", "/browser/start", h.bearer(t, 10, 1), map[string]any{
		"session_id": "s1",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when browser ceiling is off", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestChatQuoteFastPath(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "POST", "/chat", h.bearer(t, 10, 1), map[string]any{
		"message": "报价\nWidget A, 2, 10.5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp chatWire
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Assistant, "document created") {
		t.Errorf("assistant = %q", resp.Assistant)
	}
	// No provider call happened.
	if len(h.mock.Calls) != 0 {
		t.Errorf("provider calls = %d, want 0", len(h.mock.Calls))
	}
	// The artifact is linked to the committed turn.
	if len(h.db.commits) != 1 || len(h.db.commits[0].Files) != 1 {
		t.Fatalf("commits = %+v", h.db.commits)
	}
	var kinds []string
	for _, ev := range resp.Events {
		if tpe, _ := ev["type"].(string); tpe != "" {
			kinds = append(kinds, tpe)
		}
	}
	want := []string{"security_profile", "tool_call", "tool_result", "task_artifact", "assistant_message"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v", kinds)
	}
}

// cancellingProvider cancels the request context after handing back a
// tool-call round, leaving the turn half-finished.
type cancellingProvider struct {
	cancel context.CancelFunc
	calls  int
}

func (p *cancellingProvider) Name() string                         { return "flaky" }
func (p *cancellingProvider) Capabilities() providers.Capabilities { return providers.Capabilities{} }

func (p *cancellingProvider) Complete(_ context.Context, _ providers.Request) (*providers.Response, error) {
	p.calls++
	if p.calls == 1 {
		p.cancel()
		return &providers.Response{ToolCalls: []providers.ToolCall{
			{ID: "c1", Name: "fs_list", ArgsJSON: json.RawMessage(`{}`)},
		}}, nil
	}
	return &providers.Response{Content: "late answer"}, nil
}

func TestChatCancelledMidTurnCommitsUserOnly(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.srv.providers.Register(&cancellingProvider{cancel: cancel})

	body, err := json.Marshal(map[string]any{
		"message":    "hi",
		"provider":   "flaky",
		"session_id": "sess-cancel",
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/chat", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Authorization", h.bearer(t, 10, 1))
	h.h.ServeHTTP(httptest.NewRecorder(), req)

	// Only the user message survives; the assistant round in flight when
	// the client went away is never persisted.
	if len(h.db.commits) != 1 {
		t.Fatalf("commits = %d", len(h.db.commits))
	}
	msgs := h.db.commits[0].Messages
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("cancelled turn committed %d messages, first role %q", len(msgs), msgs[0].Role)
	}
}

func TestChatAttachmentFallbackToNative(t *testing.T) {
	h := newHarness(t)
	pi := &providers.Mock{NameStr: "pi"}
	native := &providers.Mock{
		NameStr: "native",
		Caps:    providers.Capabilities{CanGenerateDocs: true, CanReadAttachments: true},
		Queue:   []*providers.Response{{Content: "from native"}},
	}
	h.srv.providers.Register(pi)
	h.srv.providers.Register(native)
	h.db.files["att1"] = store.FileRecord{FileID: "att1", TeamID: 1, Filename: "a.pdf"}

	rec := h.do(t, "POST", "/chat", h.bearer(t, 10, 1), map[string]any{
		"message":     "summarize the attachment",
		"provider":    "pi",
		"attachments": []string{"att1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp chatWire
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Assistant != "from native" {
		t.Errorf("assistant = %q", resp.Assistant)
	}
	if len(pi.Calls) != 0 {
		t.Errorf("pi handled %d calls after fallback", len(pi.Calls))
	}

	var fb map[string]any
	for _, ev := range resp.Events {
		if ev["type"] == "provider_fallback" {
			fb = ev
		}
	}
	if fb == nil {
		t.Fatal("no provider_fallback event")
	}
	if fb["from"] != "pi" || fb["to"] != "native" {
		t.Errorf("fallback = %v", fb)
	}
}
