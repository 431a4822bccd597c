// Package events defines the structured event trace emitted during a turn.
// The same tagged objects are buffered into the final JSON response, framed
// as SSE, broadcast over WebSocket, and stored in chat_messages.events_json.
package events

import "encoding/json"

// Event is one tagged entry of a turn's trace. Implementations are plain
// structs whose Type field carries the tag; constructors set it.
type Event interface {
	Kind() string
}

// Capabilities is the {shell,write,browser,dangerous} set used by
// security_profile events.
type Capabilities struct {
	Shell     bool `json:"shell"`
	Write     bool `json:"write"`
	Browser   bool `json:"browser"`
	Dangerous bool `json:"dangerous"`
}

// SecurityProfile is the first event of every turn.
type SecurityProfile struct {
	Type      string       `json:"type"`
	Preset    string       `json:"preset"`
	Requested Capabilities `json:"requested"`
	Effective Capabilities `json:"effective"`
}

func NewSecurityProfile(preset string, requested, effective Capabilities) SecurityProfile {
	return SecurityProfile{Type: "security_profile", Preset: preset, Requested: requested, Effective: effective}
}

func (e SecurityProfile) Kind() string { return e.Type }

type ProviderStart struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func NewProviderStart(provider, model string) ProviderStart {
	return ProviderStart{Type: "provider_start", Provider: provider, Model: model}
}

func (e ProviderStart) Kind() string { return e.Type }

// ProviderFallback records the per-turn decision to route capabilities the
// selected provider cannot serve to the native provider.
type ProviderFallback struct {
	Type      string   `json:"type"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Requested []string `json:"requested"`
}

func NewProviderFallback(from, to string, requested []string) ProviderFallback {
	return ProviderFallback{Type: "provider_fallback", From: from, To: to, Requested: requested}
}

func (e ProviderFallback) Kind() string { return e.Type }

type ProviderDone struct {
	Type      string `json:"type"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func NewProviderDone(elapsedMS int64) ProviderDone {
	return ProviderDone{Type: "provider_done", ElapsedMS: elapsedMS}
}

func (e ProviderDone) Kind() string { return e.Type }

type ToolCall struct {
	Type string          `json:"type"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

func NewToolCall(tool string, args json.RawMessage) ToolCall {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return ToolCall{Type: "tool_call", Tool: tool, Args: args}
}

func (e ToolCall) Kind() string { return e.Type }

// ToolResult carries either Result or Error; a disabled or failed tool is a
// trace entry, never a transport failure.
type ToolResult struct {
	Type   string          `json:"type"`
	Tool   string          `json:"tool"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func NewToolResult(tool string, result json.RawMessage) ToolResult {
	return ToolResult{Type: "tool_result", Tool: tool, Result: result}
}

func NewToolError(tool, errMsg string) ToolResult {
	return ToolResult{Type: "tool_result", Tool: tool, Error: errMsg}
}

func (e ToolResult) Kind() string { return e.Type }

type ContextTrim struct {
	Type     string `json:"type"`
	Dropped  int    `json:"dropped"`
	MaxChars int    `json:"max_chars"`
}

func NewContextTrim(dropped, maxChars int) ContextTrim {
	return ContextTrim{Type: "context_trim", Dropped: dropped, MaxChars: maxChars}
}

func (e ContextTrim) Kind() string { return e.Type }

type AssistantMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func NewAssistantMessage(content string) AssistantMessage {
	return AssistantMessage{Type: "assistant_message", Content: content}
}

func (e AssistantMessage) Kind() string { return e.Type }

type TaskArtifact struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	TaskID string `json:"task_id"`
}

func NewTaskArtifact(path, taskID string) TaskArtifact {
	return TaskArtifact{Type: "task_artifact", Path: path, TaskID: taskID}
}

func (e TaskArtifact) Kind() string { return e.Type }

type Permission struct {
	Type    string `json:"type"`
	Tool    string `json:"tool"`
	Granted bool   `json:"granted"`
}

func NewPermission(tool string, granted bool) Permission {
	return Permission{Type: "permission", Tool: tool, Granted: granted}
}

func (e Permission) Kind() string { return e.Type }

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: "error", Message: message}
}

func (e Error) Kind() string { return e.Type }
