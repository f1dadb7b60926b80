package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/shopchat/internal/catalog"
	"github.com/xaenox/shopchat/internal/reasoning"
	"go.uber.org/zap"
)

// Router maps one user turn onto the specialist capabilities and
// normalizes the result into a single reply string. Routing itself is
// delegated to the reasoning engine, guided by a fixed policy; the
// coordinator conversation is rebuilt per request from the assembled
// context so no state leaks between requests.
type Router struct {
	engine   reasoning.Engine
	catalog  *catalog.Catalog
	logger   *zap.Logger
	maxSteps int
}

// RouteResult is the normalized outcome of one routed turn.
type RouteResult struct {
	Reply     string
	AgentUsed string
	Steps     int
}

func NewRouter(engine reasoning.Engine, cat *catalog.Catalog, maxSteps int, logger *zap.Logger) *Router {
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &Router{
		engine:   engine,
		catalog:  cat,
		logger:   logger,
		maxSteps: maxSteps,
	}
}

// Route runs the coordinator loop for one user message. The engine may
// pick zero, one or several capabilities per turn; steps counts engine
// invocations.
func (r *Router) Route(ctx context.Context, userMessage string, cc ContextPayload) (*RouteResult, error) {
	messages := []reasoning.Message{
		{Role: reasoning.RoleSystem, Content: r.coordinatorInstruction(cc)},
		{Role: reasoning.RoleUser, Content: userMessage},
	}

	result := &RouteResult{AgentUsed: CoordinatorAgent}
	var lastResponse reasoning.CompletionResponse

	for result.Steps < r.maxSteps {
		resp, err := r.engine.Complete(ctx, reasoning.CompletionRequest{
			Messages: messages,
			Tools:    coordinatorTools,
		})
		if err != nil {
			return nil, fmt.Errorf("coordinator completion failed: %w", err)
		}
		result.Steps++
		lastResponse = resp

		if len(resp.Message.ToolCalls) == 0 {
			result.Reply = normalizeReply(resp)
			return result, nil
		}

		messages = append(messages, resp.Message)
		for _, call := range resp.Message.ToolCalls {
			output, err := r.executeTool(ctx, call, result)
			if err != nil {
				return nil, err
			}
			result.AgentUsed = agentForTool(call.Name)
			messages = append(messages, reasoning.Message{
				Role:       reasoning.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    output,
			})
		}
	}

	// Step budget exhausted mid-delegation; fall back rather than fail.
	r.logger.Warn("Coordinator exceeded step budget",
		zap.Int("max_steps", r.maxSteps))
	result.Reply = normalizeReply(lastResponse)
	return result, nil
}

func (r *Router) coordinatorInstruction(cc ContextPayload) string {
	var b strings.Builder
	if !cc.Empty() {
		b.WriteString("CONVERSATION HISTORY:\n")
		b.WriteString(cc.Render())
		b.WriteString("\nIMPORTANT: Use this conversation history to maintain context and remember user information.\n\n")
	}
	b.WriteString(`You are a coordinator for an e-commerce customer support desk.
Handle greetings and general questions yourself, and delegate everything else:

1. search_products / get_product_info / check_stock: product searches, recommendations and availability
2. calculate: math calculations
3. escalate_to_human: when the user asks for a human support agent

Always mention stock status when recommending a product, and suggest
alternatives when something is out of stock. Be warm and professional.`)
	return b.String()
}

// executeTool runs one delegated capability and returns its output as a
// JSON document for the coordinator to read.
func (r *Router) executeTool(ctx context.Context, call reasoning.ToolCall, result *RouteResult) (string, error) {
	switch call.Name {
	case toolSearchProducts:
		var filter catalog.SearchFilter
		if err := json.Unmarshal([]byte(call.Arguments), &filter); err != nil {
			return toolError(fmt.Sprintf("invalid search arguments: %v", err)), nil
		}
		if filter.MinStock == 0 {
			filter.MinStock = 1
		}
		products := r.catalog.Search(filter)
		return mustJSON(map[string]any{
			"status":   "success",
			"count":    len(products),
			"products": products,
		}), nil

	case toolProductInfo:
		name, err := nameArgument(call.Arguments)
		if err != nil {
			return toolError(err.Error()), nil
		}
		product := r.catalog.GetByName(name)
		if product == nil {
			return mustJSON(map[string]any{
				"status":             "error",
				"message":            fmt.Sprintf("Product '%s' not found.", name),
				"available_products": r.catalog.Names(5),
			}), nil
		}
		return mustJSON(map[string]any{"status": "success", "product": product}), nil

	case toolCheckStock:
		name, err := nameArgument(call.Arguments)
		if err != nil {
			return toolError(err.Error()), nil
		}
		info := r.catalog.CheckStockByName(name)
		if info == nil {
			return toolError(fmt.Sprintf("Product '%s' not found in inventory.", name)), nil
		}
		return mustJSON(info), nil

	case toolCalculate:
		return r.calculate(ctx, call.Arguments, result)

	case toolEscalate:
		var args struct {
			Question string `json:"question"`
		}
		// A malformed question still gets a ticket.
		_ = json.Unmarshal([]byte(call.Arguments), &args)
		ack := Escalate(args.Question)
		r.logger.Info("Escalated to human support",
			zap.String("ticket_id", ack.TicketID))
		return mustJSON(ack), nil

	default:
		r.logger.Warn("Coordinator requested unknown tool",
			zap.String("tool", call.Name))
		return toolError(fmt.Sprintf("unknown tool %q", call.Name)), nil
	}
}

// calculate delegates the expression to the engine with a calculator
// instruction; the extra completion counts as a step.
func (r *Router) calculate(ctx context.Context, arguments string, result *RouteResult) (string, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return toolError(fmt.Sprintf("invalid calculate arguments: %v", err)), nil
	}

	resp, err := r.engine.Complete(ctx, reasoning.CompletionRequest{
		Messages: []reasoning.Message{
			{Role: reasoning.RoleSystem, Content: "You are a calculator. Perform math calculations accurately and reply with only the result."},
			{Role: reasoning.RoleUser, Content: args.Expression},
		},
	})
	if err != nil {
		return "", fmt.Errorf("calculation failed: %w", err)
	}
	result.Steps++

	return mustJSON(map[string]any{"status": "success", "result": normalizeReply(resp)}), nil
}

func nameArgument(arguments string) (string, error) {
	var args struct {
		ProductName string `json:"product_name"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %v", err)
	}
	if args.ProductName == "" {
		return "", fmt.Errorf("product_name is required")
	}
	return args.ProductName, nil
}

// normalizeReply extracts reply text from a completion, substituting a
// safe stringified fallback when the output is empty or malformed. This
// path never produces an error.
func normalizeReply(resp reasoning.CompletionResponse) string {
	if text := strings.TrimSpace(resp.Message.Content); text != "" {
		return text
	}
	return FallbackText(resp)
}

// FallbackText derives a reply from the raw textual form of a malformed
// completion.
func FallbackText(resp reasoning.CompletionResponse) string {
	if resp.Message.Content == "" && len(resp.Message.ToolCalls) == 0 {
		return "I'm sorry, I wasn't able to put together a response. Could you rephrase that?"
	}
	return strings.TrimSpace(fmt.Sprintf("%v", resp.Message))
}

func toolError(message string) string {
	return mustJSON(map[string]any{"status": "error", "message": message})
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(data)
}
