package events

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans out live events to WebSocket subscribers keyed by session ID.
// Slow or closed connections are dropped, never block the emitting turn.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*websocket.Conn]chan Event)}
}

// Subscribe registers conn for a session's events and starts its writer.
// The returned func unsubscribes; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) func() {
	ch := make(chan Event, 64)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*websocket.Conn]chan Event)
	}
	h.subs[sessionID][conn] = ch
	h.mu.Unlock()

	go func() {
		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("events.ws_write_failed", "session", sessionID, "error", err)
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if m := h.subs[sessionID]; m != nil {
				if got, ok := m[conn]; ok {
					delete(m, conn)
					close(got)
				}
				if len(m) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.mu.Unlock()
		})
	}
}

// Broadcast delivers ev to every subscriber of sessionID, dropping events
// for subscribers whose buffer is full.
func (h *Hub) Broadcast(sessionID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
