package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/policy"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/tools"
)

// Loop runs up to MaxSteps assistant↔tool rounds.
type Loop struct {
	Registry *tools.Registry
	MaxSteps int
}

// TurnInput is everything one turn needs.
type TurnInput struct {
	Provider providers.Provider
	Model    string

	// Fallback, when set, records a provider switch decided at turn start;
	// it is emitted right after security_profile.
	Fallback *events.ProviderFallback

	// Trim, when set, records history dropped by the budgeter before the
	// loop started.
	Trim *events.ContextTrim

	// Messages is the budgeted context: system first, user message last.
	Messages []providers.Message

	ToolCtx *tools.Context
	Policy  policy.Result
	Trace   events.Sink
}

// TurnOutput is what the loop hands back for persistence.
type TurnOutput struct {
	Assistant string

	// NewMessages are the assistant/tool messages appended during the loop,
	// in order, excluding the caller-supplied context.
	NewMessages []providers.Message

	// Artifacts registered by tool handlers this turn.
	Artifacts []store.FileRecord
}

// Run drives the loop. A provider failure aborts with an error after an
// error event; tool failures stay inside the trace and the loop continues.
func (l *Loop) Run(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	trace := in.Trace

	trace.Emit(events.NewSecurityProfile(in.Policy.Preset, in.Policy.Requested, in.Policy.Effective))
	if in.Trim != nil {
		trace.Emit(*in.Trim)
	}
	if in.Fallback != nil {
		trace.Emit(*in.Fallback)
	}
	trace.Emit(events.NewProviderStart(in.Provider.Name(), in.Model))

	out := &TurnOutput{}
	msgs := in.Messages
	start := time.Now()

	maxSteps := l.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 12
	}

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			trace.Emit(events.NewError("cancelled"))
			return out, fmt.Errorf("turn cancelled: %w", err)
		}

		resp, err := in.Provider.Complete(ctx, providers.Request{
			Model:    in.Model,
			Messages: msgs,
			Tools:    l.Registry.Specs(),
		})
		if err != nil {
			trace.Emit(events.NewError(err.Error()))
			return out, err
		}

		if len(resp.ToolCalls) == 0 {
			trace.Emit(events.NewAssistantMessage(resp.Content))
			trace.Emit(events.NewProviderDone(time.Since(start).Milliseconds()))
			assistant := providers.Message{Role: providers.RoleAssistant, Content: resp.Content}
			out.NewMessages = append(out.NewMessages, assistant)
			out.Assistant = resp.Content
			return out, nil
		}

		assistant := providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		msgs = append(msgs, assistant)
		out.NewMessages = append(out.NewMessages, assistant)

		// Calls run one at a time in provider order: the tools share the
		// session workspace, and the stream shows each tool_call before its
		// result.
		for _, call := range resp.ToolCalls {
			trace.Emit(events.NewToolCall(call.Name, call.ArgsJSON))

			res := l.Registry.Dispatch(ctx, in.ToolCtx, call.Name, call.ArgsJSON)
			if res.IsError {
				trace.Emit(events.NewToolError(call.Name, res.ForLLM))
				slog.Debug("agent.tool_error", "tool", call.Name, "error", res.ForLLM)
			} else {
				trace.Emit(events.NewToolResult(call.Name, toolResultJSON(res.ForLLM)))
			}
			for _, rec := range res.Artifacts {
				trace.Emit(events.NewTaskArtifact(rec.FileID, in.ToolCtx.SessionID))
				out.Artifacts = append(out.Artifacts, rec)
			}

			toolMsg := providers.Message{
				Role:       providers.RoleTool,
				Content:    res.ForLLM,
				ToolCallID: call.ID,
			}
			msgs = append(msgs, toolMsg)
			out.NewMessages = append(out.NewMessages, toolMsg)
		}
	}

	trace.Emit(events.NewError(fmt.Sprintf("stopped after %d steps", maxSteps)))
	trace.Emit(events.NewProviderDone(time.Since(start).Milliseconds()))
	out.Assistant = fmt.Sprintf("Stopped after %d tool steps without a final answer.", maxSteps)
	stop := providers.Message{Role: providers.RoleAssistant, Content: out.Assistant}
	out.NewMessages = append(out.NewMessages, stop)
	return out, nil
}

// toolResultJSON wraps a result string as the event payload; results that
// are already JSON objects pass through.
func toolResultJSON(s string) json.RawMessage {
	if json.Valid([]byte(s)) && len(s) > 0 && (s[0] == '{' || s[0] == '[') {
		return json.RawMessage(s)
	}
	data, _ := json.Marshal(map[string]string{"output": s})
	return data
}
