package agent

import (
	"strings"

	"github.com/google/uuid"
	"github.com/xaenox/shopchat/internal/reasoning"
)

// Capability identifiers recorded in quality metrics.
const (
	CoordinatorAgent = "CoordinatorAgent"
	GeneralAgent     = "GeneralAgent"
	ProductAgent     = "ProductAgent"
	CalculationAgent = "CalculationAgent"
)

// Tool names the coordinator may delegate to.
const (
	toolSearchProducts = "search_products"
	toolProductInfo    = "get_product_info"
	toolCheckStock     = "check_stock"
	toolCalculate      = "calculate"
	toolEscalate       = "escalate_to_human"
)

// coordinatorTools is the static capability set shared read-only across
// requests. Anything personalized lives in the per-request instruction.
var coordinatorTools = []reasoning.ToolDef{
	{
		Name:        toolSearchProducts,
		Description: "Search the product catalog with optional filters. Use for product recommendations and availability questions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string", "description": "Free-text search over product names and descriptions"},
				"category":  map[string]any{"type": "string", "description": "Product category, e.g. Laptops, Audio"},
				"max_price": map[string]any{"type": "number", "description": "Maximum price in dollars"},
				"tags":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	},
	{
		Name:        toolProductInfo,
		Description: "Get detailed information about one product by name.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"product_name": map[string]any{"type": "string"},
			},
			"required": []string{"product_name"},
		},
	},
	{
		Name:        toolCheckStock,
		Description: "Check inventory status for one product by name.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"product_name": map[string]any{"type": "string"},
			},
			"required": []string{"product_name"},
		},
	},
	{
		Name:        toolCalculate,
		Description: "Perform a math calculation, e.g. price comparisons or totals.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string", "description": "The calculation to perform, in plain text"},
			},
			"required": []string{"expression"},
		},
	},
	{
		Name:        toolEscalate,
		Description: "Escalate the conversation to a human support agent. Use when the user explicitly asks for a human or the issue cannot be resolved here.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "description": "The user's unresolved question"},
			},
			"required": []string{"question"},
		},
	},
}

// agentForTool maps a delegated tool onto the specialist identifier used
// in telemetry.
func agentForTool(name string) string {
	switch name {
	case toolSearchProducts, toolProductInfo, toolCheckStock:
		return ProductAgent
	case toolCalculate:
		return CalculationAgent
	case toolEscalate:
		return GeneralAgent
	default:
		return CoordinatorAgent
	}
}

// EscalationAck is the structured acknowledgement returned when a
// conversation is handed off to a human.
type EscalationAck struct {
	Status   string `json:"status"`
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
}

// Escalate synthesizes a support ticket. Every invocation produces a
// fresh ticket identifier.
func Escalate(question string) EscalationAck {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return EscalationAck{
		Status:   "success",
		TicketID: "TICKET-" + token,
		Message:  "A human support agent will contact you shortly.",
	}
}
