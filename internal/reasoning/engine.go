// Package reasoning wraps the external text-completion collaborator.
// The Engine interface is the injection point: request handling code never
// talks to a concrete client, so tests can substitute a fake.
package reasoning

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a completion conversation.
type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is the engine asking for one capability to be invoked.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDef describes a capability the engine may delegate to.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type CompletionRequest struct {
	Messages []Message
	Tools    []ToolDef
}

type CompletionResponse struct {
	Message      Message
	FinishReason string
}

// Engine produces one completion per call. Implementations own their
// retry policy for transient upstream failures.
type Engine interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
