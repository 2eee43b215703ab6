package gemini

import (
	"strings"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

// contextPlaceholder heads synthetic user turns injected to satisfy the
// provider's strict role alternation.
const contextPlaceholder = "(conversation context)"

// ToContents converts session history to the provider content array:
// system messages are folded into the first user turn, roles map
// user→user and assistant→model, consecutive same-role turns merge, and
// the result always starts with a user entry.
func ToContents(messages []protocol.ChatMessage) []Content {
	var system []string
	var out []Content

	appendTurn := func(role, text string) {
		if text == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, Part{Text: text})
			return
		}
		out = append(out, TextContent(role, text))
	}

	for _, m := range messages {
		switch m.Role {
		case protocol.RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case protocol.RoleUser:
			appendTurn("user", m.Content)
		case protocol.RoleAssistant:
			appendTurn("model", m.Content)
		}
	}

	if len(system) > 0 {
		joined := strings.Join(system, "\n\n")
		if len(out) > 0 && out[0].Role == "user" {
			out[0].Parts = append([]Part{{Text: joined}}, out[0].Parts...)
		} else {
			synthetic := TextContent("user", contextPlaceholder+"\n\n"+joined)
			out = append([]Content{synthetic}, out...)
		}
	}

	if len(out) > 0 && out[0].Role == "model" {
		out = append([]Content{TextContent("user", contextPlaceholder)}, out...)
	}

	return out
}
