package agent

import "github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"

// Budget bounds the provider-visible context.
type Budget struct {
	MaxMessages int
	MaxChars    int
}

// ApplyBudget trims history to fit the budget and prepends the system
// message. The transform is pure: same inputs, same output.
//
// Rules, in order: the system message always survives (truncated with a
// marker only if it alone busts the char budget); at most MaxMessages of
// the most recent history are kept; then oldest groups are dropped until
// the character estimate fits. An assistant message with tool calls and its
// paired tool results drop as one group.
func ApplyBudget(system providers.Message, history []providers.Message, b Budget) (out []providers.Message, dropped int) {
	if b.MaxMessages > 0 && len(history) > b.MaxMessages {
		dropped += len(history) - b.MaxMessages
		history = history[len(history)-b.MaxMessages:]
	}
	// Never start the window on an orphaned tool result.
	for len(history) > 0 && history[0].Role == providers.RoleTool {
		history = history[1:]
		dropped++
	}

	sysChars := messageChars(system)
	if b.MaxChars > 0 && sysChars > b.MaxChars {
		// The system prompt alone busts the budget: no history fits.
		system.Content = system.Content[:b.MaxChars] + "…(truncated)"
		dropped += len(history)
		return []providers.Message{system}, dropped
	}

	if b.MaxChars > 0 {
		total := sysChars
		for _, m := range history {
			total += messageChars(m)
		}
		for total > b.MaxChars && len(history) > 0 {
			n := groupLen(history)
			for _, m := range history[:n] {
				total -= messageChars(m)
			}
			history = history[n:]
			dropped += n
		}
	}

	return append([]providers.Message{system}, history...), dropped
}

// groupLen returns how many leading messages form one droppable group: an
// assistant message with tool calls plus its following tool results, or a
// single message otherwise.
func groupLen(history []providers.Message) int {
	if history[0].Role != providers.RoleAssistant || len(history[0].ToolCalls) == 0 {
		return 1
	}
	n := 1
	for n < len(history) && history[n].Role == providers.RoleTool {
		n++
	}
	return n
}

// messageChars estimates a message's prompt cost: textual fields plus tool
// payload JSON.
func messageChars(m providers.Message) int {
	n := len(m.Content) + len(m.ToolCallID)
	for _, tc := range m.ToolCalls {
		n += len(tc.ID) + len(tc.Name) + len(tc.ArgsJSON)
	}
	return n
}
