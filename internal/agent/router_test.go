package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/shopchat/internal/catalog"
	"github.com/xaenox/shopchat/internal/reasoning"
	"go.uber.org/zap"
)

// fakeEngine returns scripted completions in order and records requests.
type fakeEngine struct {
	responses []reasoning.CompletionResponse
	err       error
	requests  []reasoning.CompletionRequest
}

func (f *fakeEngine) Complete(ctx context.Context, req reasoning.CompletionRequest) (reasoning.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return reasoning.CompletionResponse{}, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func textResponse(text string) reasoning.CompletionResponse {
	return reasoning.CompletionResponse{
		Message: reasoning.Message{Role: reasoning.RoleAssistant, Content: text},
	}
}

func toolResponse(calls ...reasoning.ToolCall) reasoning.CompletionResponse {
	return reasoning.CompletionResponse{
		Message: reasoning.Message{Role: reasoning.RoleAssistant, ToolCalls: calls},
	}
}

func newTestRouter(t *testing.T, engine reasoning.Engine) *Router {
	t.Helper()
	cat, err := catalog.New()
	require.NoError(t, err)
	return NewRouter(engine, cat, 5, zap.NewNop())
}

func TestRouteDirectReply(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{textResponse("Hello! How can I help?")}}
	router := newTestRouter(t, engine)

	result, err := router.Route(context.Background(), "Hi", ContextPayload{})
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", result.Reply)
	assert.Equal(t, CoordinatorAgent, result.AgentUsed)
	assert.Equal(t, 1, result.Steps)

	// Empty history means no history block in the instruction.
	require.Len(t, engine.requests, 1)
	assert.NotContains(t, engine.requests[0].Messages[0].Content, "CONVERSATION HISTORY")
}

func TestRouteIncludesHistoryInInstruction(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{textResponse("ok")}}
	router := newTestRouter(t, engine)

	cc := ContextPayload{Lines: []ContextLine{{Role: "user", Content: "my name is Ana"}}}
	_, err := router.Route(context.Background(), "what's my name?", cc)
	require.NoError(t, err)

	instruction := engine.requests[0].Messages[0].Content
	assert.Contains(t, instruction, "CONVERSATION HISTORY")
	assert.Contains(t, instruction, "User: my name is Ana")
}

func TestRouteProductSearchDelegation(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{
		toolResponse(reasoning.ToolCall{
			ID:        "call-1",
			Name:      toolSearchProducts,
			Arguments: `{"category":"Laptops","max_price":1300}`,
		}),
		textResponse("I found the Dell XPS 15 for $1,299!"),
	}}
	router := newTestRouter(t, engine)

	result, err := router.Route(context.Background(), "laptop for video editing under $1300", ContextPayload{})
	require.NoError(t, err)
	assert.Equal(t, "I found the Dell XPS 15 for $1,299!", result.Reply)
	assert.Equal(t, ProductAgent, result.AgentUsed)
	assert.Equal(t, 2, result.Steps)

	// The tool result fed back to the coordinator contains the match.
	toolMsg := engine.requests[1].Messages[len(engine.requests[1].Messages)-1]
	assert.Equal(t, reasoning.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "Dell XPS 15")
}

func TestRouteMultipleToolCallsInOneTurn(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{
		toolResponse(
			reasoning.ToolCall{ID: "c1", Name: toolProductInfo, Arguments: `{"product_name":"iPhone 15 Pro"}`},
			reasoning.ToolCall{ID: "c2", Name: toolCheckStock, Arguments: `{"product_name":"iPhone 15 Pro"}`},
		),
		textResponse("The iPhone 15 Pro is $999 and low on stock."),
	}}
	router := newTestRouter(t, engine)

	result, err := router.Route(context.Background(), "do you have the iPhone 15 Pro?", ContextPayload{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, ProductAgent, result.AgentUsed)

	// Both tool outputs are appended before the second completion.
	msgs := engine.requests[1].Messages
	assert.Equal(t, reasoning.RoleTool, msgs[len(msgs)-2].Role)
	assert.Equal(t, reasoning.RoleTool, msgs[len(msgs)-1].Role)
}

func TestRouteEscalation(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{
		toolResponse(reasoning.ToolCall{ID: "c1", Name: toolEscalate, Arguments: `{"question":"refund dispute"}`}),
		textResponse("I've escalated this to a human agent."),
	}}
	router := newTestRouter(t, engine)

	result, err := router.Route(context.Background(), "let me talk to a human", ContextPayload{})
	require.NoError(t, err)
	assert.Equal(t, GeneralAgent, result.AgentUsed)

	toolMsg := engine.requests[1].Messages[len(engine.requests[1].Messages)-1]
	var ack EscalationAck
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &ack))
	assert.Equal(t, "success", ack.Status)
	assert.Regexp(t, `^TICKET-[0-9a-f]{6}$`, ack.TicketID)
}

func TestEscalateTicketsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ack := Escalate("help")
		assert.False(t, seen[ack.TicketID], "duplicate ticket %s", ack.TicketID)
		seen[ack.TicketID] = true
	}
}

func TestRouteCalculationCountsExtraStep(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{
		toolResponse(reasoning.ToolCall{ID: "c1", Name: toolCalculate, Arguments: `{"expression":"1299 * 2"}`}),
		textResponse("2598"),
		textResponse("Two Dell XPS 15 laptops cost $2,598."),
	}}
	router := newTestRouter(t, engine)

	result, err := router.Route(context.Background(), "price of two XPS 15?", ContextPayload{})
	require.NoError(t, err)
	assert.Equal(t, CalculationAgent, result.AgentUsed)
	// Coordinator call + calculator call + final coordinator call.
	assert.Equal(t, 3, result.Steps)
	assert.Equal(t, "Two Dell XPS 15 laptops cost $2,598.", result.Reply)
}

func TestRouteMalformedOutputFallsBack(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{{}}}
	router := newTestRouter(t, engine)

	result, err := router.Route(context.Background(), "Hi", ContextPayload{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Reply)
}

func TestRouteEngineFailurePropagates(t *testing.T) {
	engine := &fakeEngine{err: context.DeadlineExceeded}
	router := newTestRouter(t, engine)

	_, err := router.Route(context.Background(), "Hi", ContextPayload{})
	require.Error(t, err)
}

func TestRouteUnknownProductReportsAlternatives(t *testing.T) {
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{
		toolResponse(reasoning.ToolCall{ID: "c1", Name: toolProductInfo, Arguments: `{"product_name":"Flux Capacitor"}`}),
		textResponse("We don't carry that, but here are some alternatives."),
	}}
	router := newTestRouter(t, engine)

	_, err := router.Route(context.Background(), "do you sell flux capacitors?", ContextPayload{})
	require.NoError(t, err)

	toolMsg := engine.requests[1].Messages[len(engine.requests[1].Messages)-1]
	assert.Contains(t, toolMsg.Content, "available_products")
}

func TestRouteStepBudgetExhausted(t *testing.T) {
	// Engine keeps asking for tools forever; the router gives up and
	// falls back instead of looping.
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{
		toolResponse(reasoning.ToolCall{ID: "c1", Name: toolCheckStock, Arguments: `{"product_name":"iPhone 15 Pro"}`}),
	}}
	cat, err := catalog.New()
	require.NoError(t, err)
	router := NewRouter(engine, cat, 2, zap.NewNop())

	result, err := router.Route(context.Background(), "stock?", ContextPayload{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Steps)
	assert.NotEmpty(t, result.Reply)
}
