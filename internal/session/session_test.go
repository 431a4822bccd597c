package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// fakeStore fakes the session surface of store.Store.
type fakeStore struct {
	store.Store
	sessions map[string]store.Session
	messages map[string][]store.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]store.Session),
		messages: make(map[string][]store.Message),
	}
}

func (f *fakeStore) GetSession(_ context.Context, teamID int64, sessionID string) (*store.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.TeamID != teamID {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) SessionExists(_ context.Context, sessionID string) (bool, error) {
	_, ok := f.sessions[sessionID]
	return ok, nil
}

func (f *fakeStore) ListMessages(_ context.Context, teamID int64, sessionID string, limit int) ([]store.Message, error) {
	msgs := f.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func TestAcquireFreshSession(t *testing.T) {
	m, err := NewManager(newFakeStore(), 10, time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	live, release, err := m.Acquire(context.Background(), 1, 2, "sess-a")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if live.TeamID != 1 || live.UserID != 2 {
		t.Errorf("live = %+v", live)
	}
	if len(live.Messages) != 0 {
		t.Errorf("fresh session has %d messages", len(live.Messages))
	}
}

func TestAcquireBusy(t *testing.T) {
	m, err := NewManager(newFakeStore(), 10, time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	_, release, err := m.Acquire(context.Background(), 1, 2, "sess-a")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := m.Acquire(context.Background(), 1, 2, "sess-a"); !errors.Is(err, ErrBusy) {
		t.Errorf("second acquire: err = %v, want ErrBusy", err)
	}

	release()
	_, release2, err := m.Acquire(context.Background(), 1, 2, "sess-a")
	if err != nil {
		t.Errorf("acquire after release: %v", err)
	} else {
		release2()
	}
}

func TestRehydration(t *testing.T) {
	db := newFakeStore()
	toolCalls, _ := json.Marshal([]providers.ToolCall{
		{ID: "call_1", Name: "fs_read", ArgsJSON: json.RawMessage(`{"path":"a.txt"}`)},
	})
	db.sessions["sess-old"] = store.Session{
		SessionID: "sess-old", TeamID: 1, UserID: 2,
		Role: "developer", Provider: "native", Model: "gpt-4.1",
	}
	db.messages["sess-old"] = []store.Message{
		{Role: providers.RoleUser, Content: "read a.txt", Ordinal: 1},
		{Role: providers.RoleAssistant, ToolCalls: toolCalls, Ordinal: 2},
		{Role: providers.RoleTool, Content: "contents", ToolCallID: "call_1", Ordinal: 3},
		{Role: providers.RoleAssistant, Content: "done", Ordinal: 4},
	}

	m, err := NewManager(db, 10, time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	live, release, err := m.Acquire(context.Background(), 1, 2, "sess-old")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if live.Role != "developer" || live.Model != "gpt-4.1" {
		t.Errorf("session metadata not rehydrated: %+v", live)
	}
	if len(live.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(live.Messages))
	}
	if got := live.Messages[1].ToolCalls; len(got) != 1 || got[0].Name != "fs_read" {
		t.Errorf("tool calls not rebuilt: %+v", got)
	}
	if live.Messages[2].ToolCallID != "call_1" {
		t.Errorf("tool result link lost: %+v", live.Messages[2])
	}
}

func TestCrossTeamSessionIsNotFound(t *testing.T) {
	db := newFakeStore()
	db.sessions["sess-x"] = store.Session{SessionID: "sess-x", TeamID: 9, UserID: 1}

	m, err := NewManager(db, 10, time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	// Another team may neither read nor recreate the ID.
	if _, _, err := m.Acquire(context.Background(), 1, 2, "sess-x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-team acquire: err = %v, want ErrNotFound", err)
	}
}

func TestLRUEvictionRehydrates(t *testing.T) {
	db := newFakeStore()
	m, err := NewManager(db, 2, time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		live, release, err := m.Acquire(context.Background(), 1, 2, id)
		if err != nil {
			t.Fatal(err)
		}
		live.Messages = append(live.Messages, providers.Message{Role: providers.RoleUser, Content: id})
		release()
	}

	// s1 was evicted by s3; with nothing persisted it comes back empty.
	live, release, err := m.Acquire(context.Background(), 1, 2, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if len(live.Messages) != 0 {
		t.Errorf("evicted session kept %d in-memory messages", len(live.Messages))
	}
}

func TestEvictionKeepsTurnLock(t *testing.T) {
	m, err := NewManager(newFakeStore(), 1, time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	_, release1, err := m.Acquire(context.Background(), 1, 2, "s1")
	if err != nil {
		t.Fatal(err)
	}

	// Churn the cache well past capacity while s1's turn is in flight.
	for _, id := range []string{"s2", "s3", "s4"} {
		_, release, err := m.Acquire(context.Background(), 1, 2, id)
		if err != nil {
			t.Fatal(err)
		}
		release()
	}

	// The in-flight session must still be held: a second turn conflicts
	// instead of starting on a fresh evicted-and-rebuilt entry.
	if _, _, err := m.Acquire(context.Background(), 1, 2, "s1"); !errors.Is(err, ErrBusy) {
		t.Errorf("acquire during eviction churn: err = %v, want ErrBusy", err)
	}

	release1()
	_, release, err := m.Acquire(context.Background(), 1, 2, "s1")
	if err != nil {
		t.Errorf("acquire after release: %v", err)
	} else {
		release()
	}
}

func TestSweepDropsExpiredIdleSessions(t *testing.T) {
	m, err := NewManager(newFakeStore(), 10, time.Millisecond, 50)
	if err != nil {
		t.Fatal(err)
	}
	_, release, err := m.Acquire(context.Background(), 1, 2, "idle")
	if err != nil {
		t.Fatal(err)
	}
	release()

	_, busyRelease, err := m.Acquire(context.Background(), 1, 2, "busy")
	if err != nil {
		t.Fatal(err)
	}
	defer busyRelease()

	time.Sleep(10 * time.Millisecond)
	if n := m.Sweep(); n != 1 {
		t.Errorf("swept %d sessions, want 1 (the idle one)", n)
	}
}

func TestSearchExcerptKeepsMultibyteRunes(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("汉", 200) + " the needle sits here " + strings.Repeat("字", 200)
	live := &Live{
		ID:     "sess-cjk",
		TeamID: 1,
		UserID: 2,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: content},
		},
	}
	if err := WriteSnapshot(dir, live); err != nil {
		t.Fatal(err)
	}

	hits, err := SearchSnapshots(dir, 1, "needle", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d", len(hits))
	}
	if !utf8.ValidString(hits[0].Content) {
		t.Errorf("excerpt split a multibyte rune: %q", hits[0].Content)
	}
	if !strings.Contains(hits[0].Content, "needle") {
		t.Errorf("excerpt lost the match: %q", hits[0].Content)
	}
}
