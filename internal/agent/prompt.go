// Package agent drives the assistant↔tool rounds of one turn: prompt
// assembly, context budgeting, the step loop, and the event trace that
// documents it.
package agent

import (
	"strings"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// roleTemplates is the built-in roles/<name> collection. Unknown roles get
// the assistant template.
var roleTemplates = map[string]string{
	"assistant": "You are a capable AI teammate working inside a shared team workspace. " +
		"Be direct and practical. Use the available tools when the task needs files, commands, documents, or the web.",
	"developer": "You are a senior software developer on this team. " +
		"Read code before changing it, prefer small verifiable steps, and run commands to check your work when shell access is available.",
	"product_manager": "You are the team's product manager. " +
		"Turn vague asks into concrete requirements, write clear documents, and produce quotes, decks, and prototypes when asked.",
	"inspector": "You are a quality inspector. " +
		"Structure findings as itemized reports with category, item, result, and notes, and generate inspection documents from them.",
}

const toolContract = `Tool usage contract:
- Call tools with arguments that match their schemas exactly.
- File paths are relative to the team workspace; you cannot reach outside it.
- Tool errors come back as results; read them and adapt instead of repeating the same call.
- Generated documents and screenshots are returned as download links; include those links in your answer.`

// AssemblePrompt builds the system message for a turn from the role
// template, the team's enabled skills in id order, and the tool contract.
// It is recomputed every turn and never persisted.
func AssemblePrompt(role string, skills []store.Skill) providers.Message {
	tmpl, ok := roleTemplates[role]
	if !ok {
		tmpl = roleTemplates["assistant"]
	}

	var b strings.Builder
	b.WriteString(tmpl)

	if len(skills) > 0 {
		b.WriteString("\n\nTeam skills:")
		for _, s := range skills {
			b.WriteString("\n\n## " + s.Name)
			if s.Description != "" {
				b.WriteString("\n" + s.Description)
			}
			if s.Content != "" {
				b.WriteString("\n" + s.Content)
			}
		}
	}

	b.WriteString("\n\n" + toolContract)
	return providers.Message{Role: providers.RoleSystem, Content: b.String()}
}

// docIntentKeywords flag turns that will need document or prototype
// generation; the fallback decision consults this once, at turn start.
var docIntentKeywords = []string{
	"ppt", "pptx", "slide", "deck", "presentation",
	"quote", "quotation", "报价",
	"inspection report", "验收",
	"prototype", "原型", "mockup",
}

// NeedsDocGeneration reports whether the user message asks for generator
// output.
func NeedsDocGeneration(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range docIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
