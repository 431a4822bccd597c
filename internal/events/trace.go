package events

import (
	"encoding/json"
	"sync"
)

// Sink receives events as they are emitted. The agent loop does not know
// whether the sink buffers, streams, or both.
type Sink interface {
	Emit(Event)
}

// Trace buffers a turn's events in emission order and optionally forwards
// each one to a streaming sink. Safe for use from the single goroutine
// driving a turn plus the WS hub reading snapshots.
type Trace struct {
	mu      sync.Mutex
	events  []Event
	forward func(Event)
}

// NewTrace returns a Trace. forward may be nil (buffered mode).
func NewTrace(forward func(Event)) *Trace {
	return &Trace{forward: forward}
}

func (t *Trace) Emit(ev Event) {
	t.mu.Lock()
	t.events = append(t.events, ev)
	fwd := t.forward
	t.mu.Unlock()
	if fwd != nil {
		fwd(ev)
	}
}

// Events returns a snapshot of the emitted events in order.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// MarshalEvents encodes events as the wire-format JSON array.
func MarshalEvents(evs []Event) (json.RawMessage, error) {
	if len(evs) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(evs)
}

// DecodeEvents parses a stored events_json array into generic tagged maps.
// Stored traces are read back for history snapshots, where the concrete Go
// type no longer matters.
func DecodeEvents(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
