package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/policy"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/tools"
)

func sys() providers.Message {
	return providers.Message{Role: providers.RoleSystem, Content: "system"}
}

func user(s string) providers.Message {
	return providers.Message{Role: providers.RoleUser, Content: s}
}

func TestApplyBudgetKeepsSystem(t *testing.T) {
	history := []providers.Message{user("a"), user("b"), user("c")}
	out, dropped := ApplyBudget(sys(), history, Budget{MaxMessages: 2, MaxChars: 0})
	if dropped != 1 {
		t.Errorf("dropped = %d", dropped)
	}
	if out[0].Role != providers.RoleSystem {
		t.Fatal("system not first")
	}
	if len(out) != 3 || out[1].Content != "b" {
		t.Errorf("out = %+v", out)
	}
}

func TestApplyBudgetCharLimitDropsGroups(t *testing.T) {
	long := strings.Repeat("x", 100)
	call := []providers.ToolCall{{ID: "c1", Name: "fs_read", ArgsJSON: json.RawMessage(`{}`)}}
	history := []providers.Message{
		{Role: providers.RoleAssistant, Content: long, ToolCalls: call},
		{Role: providers.RoleTool, Content: long, ToolCallID: "c1"},
		user(long),
	}
	// Budget fits system + one long message only: the assistant+tool pair
	// must go together.
	out, dropped := ApplyBudget(sys(), history, Budget{MaxChars: 120})
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2 (paired)", dropped)
	}
	if len(out) != 2 || out[1].Role != providers.RoleUser {
		t.Errorf("out = %+v", out)
	}
}

func TestApplyBudgetExactCountKept(t *testing.T) {
	history := []providers.Message{user("a"), user("b")}
	out, dropped := ApplyBudget(sys(), history, Budget{MaxMessages: 2})
	if dropped != 0 || len(out) != 3 {
		t.Errorf("exactly-at-limit history trimmed: dropped=%d len=%d", dropped, len(out))
	}
}

func TestApplyBudgetTruncatesOversizedSystem(t *testing.T) {
	big := providers.Message{Role: providers.RoleSystem, Content: strings.Repeat("s", 500)}
	out, dropped := ApplyBudget(big, []providers.Message{user("a"), user("b")}, Budget{MaxChars: 100})
	if !strings.HasSuffix(out[0].Content, "…(truncated)") {
		t.Error("oversized system prompt not marked")
	}
	// Nothing else fits when the system prompt alone busts the budget.
	if len(out) != 1 || dropped != 2 {
		t.Errorf("history kept alongside oversized system: len=%d dropped=%d", len(out), dropped)
	}
}

func TestApplyBudgetIsPure(t *testing.T) {
	history := []providers.Message{user("a"), user("b"), user("c")}
	a, da := ApplyBudget(sys(), history, Budget{MaxMessages: 2, MaxChars: 1000})
	b, db := ApplyBudget(sys(), history, Budget{MaxMessages: 2, MaxChars: 1000})
	if da != db || len(a) != len(b) {
		t.Fatal("budgeter is not deterministic")
	}
	for i := range a {
		if a[i].Content != b[i].Content {
			t.Fatal("budgeter is not deterministic")
		}
	}
}

func newTestLoop(t *testing.T) (*Loop, *tools.Context) {
	t.Helper()
	db := &loopMemStore{files: make(map[string]store.FileRecord)}
	art, err := artifacts.New(t.TempDir(), db)
	if err != nil {
		t.Fatal(err)
	}
	tc := &tools.Context{
		TeamID:             1,
		SessionID:          "sess",
		WorkspaceRoot:      t.TempDir(),
		MaxFileReadChars:   1000,
		MaxToolOutputChars: 2000,
		Artifacts:          art,
		Tokens:             artifacts.NewTokenIssuer("secret", time.Minute),
		PublicBaseURL:      "http://localhost",
	}
	return &Loop{Registry: tools.NewRegistry(), MaxSteps: 5}, tc
}

type loopMemStore struct {
	store.Store
	files map[string]store.FileRecord
}

func (m *loopMemStore) InsertFile(_ context.Context, rec store.FileRecord) error {
	m.files[rec.FileID] = rec
	return nil
}

func kinds(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Kind()
	}
	return out
}

func TestLoopPlainAnswer(t *testing.T) {
	loop, tc := newTestLoop(t)
	mock := &providers.Mock{Queue: []*providers.Response{{Content: "hello"}}}
	trace := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Model:    "m",
		Messages: []providers.Message{sys(), user("hi")},
		ToolCtx:  tc,
		Policy:   policy.Result{Preset: policy.PresetSafe},
		Trace:    trace,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Assistant != "hello" || len(out.NewMessages) != 1 {
		t.Errorf("out = %+v", out)
	}
	got := kinds(trace.Events())
	want := []string{"security_profile", "provider_start", "assistant_message", "provider_done"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v", got)
	}
}

func TestLoopDisabledToolContinues(t *testing.T) {
	loop, tc := newTestLoop(t)
	// Safe preset: no write. The model tries fs_write, sees the error, and
	// answers.
	mock := &providers.Mock{Queue: []*providers.Response{
		{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "fs_write",
			ArgsJSON: json.RawMessage(`{"path":"a.txt","content":"x"}`)}}},
		{Content: "could not write"},
	}}
	trace := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Messages: []providers.Message{sys(), user("write a file")},
		ToolCtx:  tc,
		Policy:   policy.Result{Preset: policy.PresetSafe},
		Trace:    trace,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Assistant != "could not write" {
		t.Errorf("assistant = %q", out.Assistant)
	}

	var sawDisabled bool
	for _, ev := range trace.Events() {
		if tr, ok := ev.(events.ToolResult); ok && tr.Error == "disabled" {
			sawDisabled = true
		}
	}
	if !sawDisabled {
		t.Error("no disabled tool_result in trace")
	}
	if len(out.Artifacts) != 0 {
		t.Error("disabled tool produced artifacts")
	}
	// user-visible messages: assistant(tool_calls) + tool + assistant.
	if len(out.NewMessages) != 3 {
		t.Errorf("new messages = %d", len(out.NewMessages))
	}
}

func TestLoopUnknownTool(t *testing.T) {
	loop, tc := newTestLoop(t)
	mock := &providers.Mock{Queue: []*providers.Response{
		{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "fs_teleport", ArgsJSON: json.RawMessage(`{}`)}}},
		{Content: "ok"},
	}}
	trace := events.NewTrace(nil)

	if _, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Messages: []providers.Message{sys(), user("x")},
		ToolCtx:  tc,
		Trace:    trace,
	}); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, ev := range trace.Events() {
		if tr, ok := ev.(events.ToolResult); ok && strings.Contains(tr.Error, "unknown tool") {
			found = true
		}
	}
	if !found {
		t.Error("unknown tool not surfaced in trace")
	}
}

func TestLoopMaxSteps(t *testing.T) {
	loop, tc := newTestLoop(t)
	loop.MaxSteps = 2
	// Provider that always asks for another tool call.
	call := providers.ToolCall{ID: "c", Name: "fs_list", ArgsJSON: json.RawMessage(`{}`)}
	mock := &providers.Mock{Queue: []*providers.Response{
		{ToolCalls: []providers.ToolCall{call}},
		{ToolCalls: []providers.ToolCall{call}},
		{ToolCalls: []providers.ToolCall{call}},
	}}
	trace := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Messages: []providers.Message{sys(), user("loop forever")},
		ToolCtx:  tc,
		Trace:    trace,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Assistant, "Stopped after 2") {
		t.Errorf("assistant = %q", out.Assistant)
	}
	var sawStop bool
	for _, ev := range trace.Events() {
		if e, ok := ev.(events.Error); ok && strings.Contains(e.Message, "stopped after 2 steps") {
			sawStop = true
		}
	}
	if !sawStop {
		t.Error("max_steps error event missing")
	}
}

func TestLoopCancellation(t *testing.T) {
	loop, tc := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &providers.Mock{}
	trace := events.NewTrace(nil)
	out, err := loop.Run(ctx, TurnInput{
		Provider: mock,
		Messages: []providers.Message{sys(), user("x")},
		ToolCtx:  tc,
		Trace:    trace,
	})
	if err == nil {
		t.Fatal("cancelled turn returned nil error")
	}
	if len(out.NewMessages) != 0 {
		t.Error("cancelled turn produced messages")
	}
}

func TestLoopFallbackEvent(t *testing.T) {
	loop, tc := newTestLoop(t)
	mock := &providers.Mock{NameStr: "native", Queue: []*providers.Response{{Content: "deck done"}}}
	trace := events.NewTrace(nil)
	fb := events.NewProviderFallback("opencode", "native", []string{"docs"})

	if _, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Fallback: &fb,
		Messages: []providers.Message{sys(), user("generate a PPT titled Alpha")},
		ToolCtx:  tc,
		Trace:    trace,
	}); err != nil {
		t.Fatal(err)
	}
	got := kinds(trace.Events())
	if got[0] != "security_profile" || got[1] != "provider_fallback" || got[2] != "provider_start" {
		t.Errorf("event order = %v", got)
	}
}

func TestAssemblePrompt(t *testing.T) {
	skills := []store.Skill{
		{Name: "Pricing", Description: "standard pricing rules", Content: "Unit prices come from the 2026 sheet."},
		{Name: "Tone", Content: "Answer in short paragraphs."},
	}
	msg := AssemblePrompt("product_manager", skills)
	if msg.Role != providers.RoleSystem {
		t.Fatal("not a system message")
	}
	if !strings.Contains(msg.Content, "product manager") {
		t.Error("role template missing")
	}
	// Skills appear in order.
	i, j := strings.Index(msg.Content, "Pricing"), strings.Index(msg.Content, "Tone")
	if i < 0 || j < 0 || i > j {
		t.Errorf("skills out of order: %d %d", i, j)
	}
	if !strings.Contains(msg.Content, "Tool usage contract") {
		t.Error("tool contract missing")
	}

	// Unknown role falls back.
	fallback := AssemblePrompt("astronaut", nil)
	if !strings.Contains(fallback.Content, "AI teammate") {
		t.Error("unknown role did not fall back")
	}
}

func TestNeedsDocGeneration(t *testing.T) {
	if !NeedsDocGeneration("generate a PPT titled Alpha") {
		t.Error("ppt intent missed")
	}
	if !NeedsDocGeneration("请帮我做一份报价单") {
		t.Error("quote intent missed")
	}
	if NeedsDocGeneration("what time is it") {
		t.Error("false positive")
	}
}

func TestParseQuoteFastPath(t *testing.T) {
	msg := "帮我做一份报价\nWidget A, 2, 10.5\nWidget B, 1, 99"
	p, ok := ParseQuoteFastPath(msg)
	if !ok {
		t.Fatal("parseable quote not recognized")
	}
	if len(p.Items) != 2 || p.Items[0].Name != "Widget A" || p.Items[0].Quantity != 2 || p.Items[0].UnitPrice != 10.5 {
		t.Errorf("items = %+v", p.Items)
	}

	// Whitespace-separated fields work too.
	p, ok = ParseQuoteFastPath("quote please\nBolt 10 0.25")
	if !ok || len(p.Items) != 1 || p.Items[0].Name != "Bolt" {
		t.Errorf("whitespace form: ok=%v items=%+v", ok, p)
	}

	// Keyword without parseable items falls through to the model.
	if _, ok := ParseQuoteFastPath("can you quote Hamlet for me"); ok {
		t.Error("prose quote request misrouted to the fast path")
	}
	// Items without the keyword are not a quote request.
	if _, ok := ParseQuoteFastPath("Widget A, 2, 10.5"); ok {
		t.Error("bare item line misrouted to the fast path")
	}
}

func TestLoopSequentialToolCalls(t *testing.T) {
	loop, tc := newTestLoop(t)
	mock := &providers.Mock{Queue: []*providers.Response{
		{ToolCalls: []providers.ToolCall{
			{ID: "c1", Name: "fs_list", ArgsJSON: json.RawMessage(`{}`)},
			{ID: "c2", Name: "fs_list", ArgsJSON: json.RawMessage(`{}`)},
		}},
		{Content: "done"},
	}}
	trace := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Messages: []providers.Message{sys(), user("list twice")},
		ToolCtx:  tc,
		Trace:    trace,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Calls run in provider order, each tool_call directly before its
	// result.
	var order []string
	for _, ev := range trace.Events() {
		order = append(order, ev.Kind())
	}
	want := "security_profile,provider_start,tool_call,tool_result,tool_call,tool_result,assistant_message,provider_done"
	if strings.Join(order, ",") != want {
		t.Errorf("events = %v", order)
	}
	// assistant(tool_calls) + 2 tool messages + assistant.
	if len(out.NewMessages) != 4 {
		t.Errorf("new messages = %d", len(out.NewMessages))
	}
	if out.NewMessages[1].ToolCallID != "c1" || out.NewMessages[2].ToolCallID != "c2" {
		t.Error("tool messages out of order")
	}
}

func TestLoopTrimFollowsProfile(t *testing.T) {
	loop, tc := newTestLoop(t)
	mock := &providers.Mock{Queue: []*providers.Response{{Content: "ok"}}}
	trace := events.NewTrace(nil)
	trim := events.NewContextTrim(3, 1000)

	if _, err := loop.Run(context.Background(), TurnInput{
		Provider: mock,
		Trim:     &trim,
		Messages: []providers.Message{sys(), user("hi")},
		ToolCtx:  tc,
		Trace:    trace,
	}); err != nil {
		t.Fatal(err)
	}
	got := kinds(trace.Events())
	want := []string{"security_profile", "context_trim", "provider_start", "assistant_message", "provider_done"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v", got)
	}
}
