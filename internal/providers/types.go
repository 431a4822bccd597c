// Package providers defines the model-adapter contract and its
// implementations: native chat-completions HTTP, subprocess JSONL adapters
// (codex, pi, nanobot), and the opencode HTTP sidecar.
package providers

import (
	"context"
	"encoding/json"
	"errors"
)

// Message roles on the conversation transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a provider-normalized tool invocation request.
type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	ArgsJSON json.RawMessage `json:"args_json"`
}

// Message is one transcript entry in provider-neutral form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role=tool results
}

// ToolSpec describes one callable tool for the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema object
}

// Request is one model completion call.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// Response is the model's reply: either content, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall

	// Usage, when the provider reports it.
	PromptTokens     int
	CompletionTokens int
}

// Capabilities declares what a provider can do; the agent loop and the
// capability policy consult these instead of switching on provider names.
type Capabilities struct {
	// CanGenerateDocs: the provider handles doc/prototype generator tools
	// itself. Providers without it trigger the codex fallback for those
	// requests.
	CanGenerateDocs bool

	// CanReadAttachments: binary attachments can be passed through.
	CanReadAttachments bool

	// CanRunUnsandboxed: the dangerous capability bit may be granted.
	CanRunUnsandboxed bool
}

// Provider is a model adapter. Complete blocks until the model answers or
// ctx is done.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ErrProviderUnavailable marks transport-level failures (connection, 5xx,
// malformed stream); the HTTP layer maps it to 502.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ErrProviderTimeout marks a call that exceeded its deadline; mapped to 504.
var ErrProviderTimeout = errors.New("provider timeout")
