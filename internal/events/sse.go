package events

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter frames events as server-sent events and flushes after each one.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for SSE streaming. Returns an error when the
// underlying writer cannot flush (no streaming support).
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Emit writes one event frame: "event:<type>\ndata:<json>\n\n".
func (s *SSEWriter) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event:%s\ndata:%s\n\n", ev.Kind(), data)
	s.flusher.Flush()
}

// Done writes the terminal frame. success=false carries the error message.
func (s *SSEWriter) Done(success bool, errMsg string) {
	payload := map[string]any{"success": success}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(s.w, "event:done\ndata:%s\n\n", data)
	s.flusher.Flush()
}
