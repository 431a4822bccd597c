package events

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTraceBuffersInOrder(t *testing.T) {
	var forwarded []string
	tr := NewTrace(func(ev Event) { forwarded = append(forwarded, ev.Kind()) })

	tr.Emit(NewSecurityProfile("safe", Capabilities{}, Capabilities{}))
	tr.Emit(NewProviderStart("mock", "m"))
	tr.Emit(NewAssistantMessage("hi"))

	evs := tr.Events()
	if len(evs) != 3 || evs[0].Kind() != "security_profile" || evs[2].Kind() != "assistant_message" {
		t.Errorf("events = %v", evs)
	}
	if strings.Join(forwarded, ",") != "security_profile,provider_start,assistant_message" {
		t.Errorf("forwarded = %v", forwarded)
	}
}

func TestMarshalEventsEmpty(t *testing.T) {
	raw, err := MarshalEvents(nil)
	if err != nil || string(raw) != "[]" {
		t.Errorf("raw = %s err = %v", raw, err)
	}
}

func TestEventTagsRoundTrip(t *testing.T) {
	raw, err := MarshalEvents([]Event{
		NewToolCall("fs_read", json.RawMessage(`{"path":"a"}`)),
		NewToolError("fs_write", "disabled"),
	})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeEvents(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[0]["type"] != "tool_call" || decoded[1]["error"] != "disabled" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestSSEFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatal(err)
	}
	w.Emit(NewAssistantMessage("hello"))
	w.Done(true, "")

	body := rec.Body.String()
	if !strings.Contains(body, "event:assistant_message\ndata:") {
		t.Errorf("body = %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Error("frames not double-newline terminated")
	}
	if !strings.Contains(body, "event:done\ndata:{\"success\":true}") {
		t.Errorf("terminal frame missing: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
