// Package session keeps the live, in-memory conversation state: an LRU of
// recent sessions with TTL expiry, per-session turn locks, and rehydration
// from the durable store when a session has fallen out of memory.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// ErrBusy reports a second concurrent turn on the same session. Turns on
// one session are strictly serialized; callers surface this as a conflict.
var ErrBusy = errors.New("session busy")

// Live is the in-memory working state of one session.
type Live struct {
	ID        string
	TeamID    int64
	UserID    int64
	ProjectID *int64
	Role      string
	Provider  string
	Model     string

	// Messages is the transcript in provider-neutral form, oldest first.
	// The system prompt is never stored here; it is re-synthesized each
	// turn.
	Messages []providers.Message

	CreatedAt time.Time
	UpdatedAt time.Time
}

type entry struct {
	live     *Live
	lastUsed time.Time
}

// Manager owns the live-session cache. Sessions with a turn in flight are
// pinned in the active map, outside the LRU, so eviction can never split
// one session across two concurrent entries.
type Manager struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, *entry]
	active map[string]*entry

	db          store.Store
	ttl         time.Duration
	maxMessages int
}

func NewManager(db store.Store, maxSessions int, ttl time.Duration, maxMessages int) (*Manager, error) {
	if maxSessions <= 0 {
		maxSessions = 200
	}
	cache, err := lru.New[string, *entry](maxSessions)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cache:       cache,
		active:      make(map[string]*entry),
		db:          db,
		ttl:         ttl,
		maxMessages: maxMessages,
	}, nil
}

// Acquire returns the live session for (teamID, sessionID), locked for one
// turn. It rehydrates from the store on a cache miss and creates a fresh
// session when the store has never seen the ID. The returned release func
// must be called when the turn ends.
//
// A session owned by another team is reported as absent, and the ID is
// rejected rather than recreated: session IDs are never silently reused
// across teams.
func (m *Manager) Acquire(ctx context.Context, teamID, userID int64, sessionID string) (*Live, func(), error) {
	m.mu.Lock()
	if _, busy := m.active[sessionID]; busy {
		m.mu.Unlock()
		return nil, nil, ErrBusy
	}
	e, ok := m.cache.Get(sessionID)
	if ok && m.expired(e) {
		m.cache.Remove(sessionID)
		ok = false
	}
	if !ok {
		e = &entry{}
	}
	m.active[sessionID] = e
	m.cache.Remove(sessionID)
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.active, sessionID)
		e.lastUsed = time.Now()
		m.cache.Add(sessionID, e)
		m.mu.Unlock()
	}

	if e.live == nil {
		live, err := m.rehydrate(ctx, teamID, userID, sessionID)
		if err != nil {
			m.mu.Lock()
			delete(m.active, sessionID)
			m.mu.Unlock()
			return nil, nil, err
		}
		e.live = live
	}

	if e.live.TeamID != teamID {
		release()
		return nil, nil, store.ErrNotFound
	}
	return e.live, release, nil
}

// Drop forgets the live state without touching the durable rows.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	m.cache.Remove(sessionID)
	m.mu.Unlock()
}

// Run sweeps expired idle sessions until ctx is cancelled. Acquire still
// expires lazily; the sweep bounds how long an idle transcript stays
// resident.
func (m *Manager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(m.ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// Sweep drops every expired idle session and reports how many went.
// Sessions with a turn in flight live in the active map and are never
// touched.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int
	for _, k := range m.cache.Keys() {
		if e, ok := m.cache.Peek(k); ok && m.expired(e) {
			m.cache.Remove(k)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("session.swept", "removed", removed)
	}
	return removed
}

func (m *Manager) expired(e *entry) bool {
	return m.ttl > 0 && !e.lastUsed.IsZero() && time.Since(e.lastUsed) > m.ttl
}

// rehydrate rebuilds the transcript from the most recent persisted
// messages, or starts a fresh session when none exist.
func (m *Manager) rehydrate(ctx context.Context, teamID, userID int64, sessionID string) (*Live, error) {
	s, err := m.db.GetSession(ctx, teamID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		// Guard against IDs that exist on another team before creating.
		if taken, gerr := m.db.SessionExists(ctx, sessionID); gerr != nil {
			return nil, gerr
		} else if taken {
			return nil, store.ErrNotFound
		}
		now := time.Now()
		return &Live{
			ID:        sessionID,
			TeamID:    teamID,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs, err := m.db.ListMessages(ctx, teamID, sessionID, m.maxMessages)
	if err != nil {
		return nil, err
	}
	live := &Live{
		ID:        s.SessionID,
		TeamID:    s.TeamID,
		UserID:    s.UserID,
		ProjectID: s.ProjectID,
		Role:      s.Role,
		Provider:  s.Provider,
		Model:     s.Model,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Messages:  make([]providers.Message, 0, len(msgs)),
	}
	for _, row := range msgs {
		msg := providers.Message{
			Role:       row.Role,
			Content:    row.Content,
			ToolCallID: row.ToolCallID,
		}
		if len(row.ToolCalls) > 0 {
			if err := json.Unmarshal(row.ToolCalls, &msg.ToolCalls); err != nil {
				slog.Warn("session.bad_tool_calls", "session_id", sessionID, "ordinal", row.Ordinal, "error", err)
			}
		}
		live.Messages = append(live.Messages, msg)
	}
	slog.Debug("session.rehydrated", "session_id", sessionID, "messages", len(live.Messages))
	return live, nil
}
