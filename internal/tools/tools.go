// Package tools declares the closed set of callable tools: typed input
// schemas, risk classes, and handlers. Dispatch validates arguments,
// enforces the effective capability set before any side effect, and folds
// every failure into a structured tool result the model can see.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/browser"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// Risk classes gate tools on the effective capability set.
type Risk string

const (
	RiskSafe      Risk = "safe"
	RiskShell     Risk = "dangerous-shell"
	RiskWrite     Risk = "dangerous-write"
	RiskBrowser   Risk = "dangerous-browser"
	RiskGenerator Risk = "generator"
	RiskReader    Risk = "reader"
)

// allowed reports whether caps permit a risk class. Readers and generators
// are always callable: generator artifacts go through the artifact store,
// never the workspace, so they are exempt from the write bit.
func allowed(risk Risk, caps events.Capabilities) bool {
	switch risk {
	case RiskShell:
		return caps.Shell
	case RiskWrite:
		return caps.Write
	case RiskBrowser:
		return caps.Browser
	default:
		return true
	}
}

// Result is what a tool hands back to the loop.
type Result struct {
	// ForLLM is the stringified result appended as the role=tool message.
	ForLLM string

	// IsError marks structured tool failures; the loop continues either way.
	IsError bool

	// Artifacts registered during this call, reported as task_artifact
	// events and linked to the terminal assistant message.
	Artifacts []store.FileRecord
}

func errResult(format string, args ...any) *Result {
	return &Result{ForLLM: fmt.Sprintf(format, args...), IsError: true}
}

// Context carries everything a handler may touch for one call.
type Context struct {
	TeamID    int64
	UserID    int64
	SessionID string
	ProjectID *int64

	WorkspaceRoot string
	Caps          events.Capabilities

	MaxFileReadChars   int
	MaxToolOutputChars int

	Artifacts *artifacts.Store
	Tokens    *artifacts.TokenIssuer
	Browser   *browser.Manager

	// PublicBaseURL prefixes download links handed to the model.
	PublicBaseURL string
}

// DownloadURL builds the tokenized link for an artifact.
func (tc *Context) DownloadURL(fileID string) string {
	token, err := tc.Tokens.Issue(fileID, tc.TeamID)
	if err != nil {
		return ""
	}
	return tc.PublicBaseURL + "/files/" + fileID + "?token=" + token
}

// Tool is one entry of the catalog.
type Tool struct {
	Name        string
	Description string
	Risk        Risk
	Schema      json.RawMessage
	Timeout     time.Duration

	Handler func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error)

	compiled *jsonschema.Schema
}

// Registry is the catalog, in declaration order.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry compiles the full tool set. Schema compilation failure is a
// programming error, hence the panic.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, t := range []*Tool{
		fsListTool(), fsReadTool(), fsWriteTool(),
		shellRunTool(),
		browserStartTool(), browserNavigateTool(), browserScreenshotTool(),
		docPptxTool(), docQuoteDocxTool(), docQuoteXlsxTool(),
		docInspectionDocxTool(), docInspectionXlsxTool(),
		protoGenerateTool(),
		attachmentReadTool(),
	} {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t *Tool) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(t.Schema))
	if err != nil {
		panic(fmt.Sprintf("tool %s: bad schema: %v", t.Name, err))
	}
	if err := c.AddResource(t.Name+".json", doc); err != nil {
		panic(fmt.Sprintf("tool %s: add schema: %v", t.Name, err))
	}
	t.compiled, err = c.Compile(t.Name + ".json")
	if err != nil {
		panic(fmt.Sprintf("tool %s: compile schema: %v", t.Name, err))
	}
	if t.Timeout <= 0 {
		t.Timeout = 60 * time.Second
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Specs lists the catalog as provider tool descriptors.
func (r *Registry) Specs() []providers.ToolSpec {
	specs := make([]providers.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, providers.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}
	return specs
}

// Dispatch runs one tool call end to end. It never returns a Go error:
// unknown tools, invalid arguments, disabled capabilities, timeouts, and
// handler failures all come back as error-flagged Results.
func (r *Registry) Dispatch(ctx context.Context, tc *Context, name string, argsJSON json.RawMessage) *Result {
	t, ok := r.tools[name]
	if !ok {
		return errResult("unknown tool %q", name)
	}

	args, repaired := normalizeArgs(argsJSON)
	if args == nil {
		return errResult("invalid arguments: not valid JSON")
	}
	if repaired {
		slog.Debug("tool.args_repaired", "tool", name)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return errResult("invalid arguments: %v", err)
	}
	if err := t.compiled.Validate(inst); err != nil {
		return errResult("invalid arguments: %v", err)
	}

	// Capability gate runs before the handler; a disabled tool must have no
	// side effects at all.
	if !allowed(t.Risk, tc.Caps) {
		return errResult("disabled")
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	res, err := t.Handler(callCtx, tc, args)
	if callCtx.Err() == context.DeadlineExceeded {
		return errResult("tool timeout after %s", t.Timeout)
	}
	if err != nil {
		return errResult("%v", err)
	}
	res.ForLLM = Truncate(res.ForLLM, tc.MaxToolOutputChars)
	return res
}

// Truncate caps s at max characters, appending a marker when it cuts.
// Exactly max characters pass through untouched.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…(truncated)"
}

// normalizeArgs accepts the provider's argument blob as-is when it is valid
// JSON, otherwise attempts a repair pass (models emit trailing commas,
// single quotes, unquoted keys). The bool reports whether repair ran.
func normalizeArgs(argsJSON json.RawMessage) (json.RawMessage, bool) {
	if len(bytes.TrimSpace(argsJSON)) == 0 {
		return json.RawMessage(`{}`), false
	}
	if json.Valid(argsJSON) {
		return argsJSON, false
	}
	fixed, err := jsonrepair.JSONRepair(string(argsJSON))
	if err != nil || !json.Valid([]byte(fixed)) {
		return nil, false
	}
	return json.RawMessage(fixed), true
}
