package agent

import (
	"strings"

	"github.com/xaenox/shopchat/internal/models"
)

// ContextLine is one role-tagged entry of the assembled context payload.
type ContextLine struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// ContextPayload is the bounded, ordered recent-history representation
// handed to the coordinator. It is a pure value: building it has no side
// effects and identical history yields an identical payload.
type ContextPayload struct {
	Lines []ContextLine
}

// BuildContext trims history (oldest first) to at most maxMessages
// entries, then keeps the most recent maxRecent for the prompt,
// preserving chronological order.
func BuildContext(history []models.Message, maxMessages, maxRecent int) ContextPayload {
	if maxMessages > 0 && len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}
	if maxRecent > 0 && len(history) > maxRecent {
		history = history[len(history)-maxRecent:]
	}

	payload := ContextPayload{}
	for _, msg := range history {
		payload.Lines = append(payload.Lines, ContextLine{Role: msg.Role, Content: msg.Content})
	}
	return payload
}

func (p ContextPayload) Empty() bool {
	return len(p.Lines) == 0
}

// Render formats the payload as role-tagged lines for inclusion in the
// coordinator instruction. An empty payload renders to an empty string.
func (p ContextPayload) Render() string {
	if p.Empty() {
		return ""
	}

	var b strings.Builder
	for _, line := range p.Lines {
		role := "User"
		if line.Role == models.RoleAssistant {
			role = "Assistant"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(line.Content)
		b.WriteString("\n")
	}
	return b.String()
}
