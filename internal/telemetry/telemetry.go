package telemetry

import (
	"context"
	"time"
)

// Record is one durable outcome record per processed turn.
type Record struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ResponseTime   float64   `json:"response_time"`
	TokensUsed     *int      `json:"tokens_used"`
	StepsCount     int       `json:"steps_count"`
	AgentUsed      string    `json:"agent_used"`
	Success        bool      `json:"success"`
	ErrorOccurred  bool      `json:"error_occurred"`
	UserRating     *int      `json:"user_rating"`
	Timestamp      time.Time `json:"timestamp"`
}

// Summary aggregates records inside a trailing window.
type Summary struct {
	TotalConversations int     `json:"total_conversations"`
	AvgResponseTime    float64 `json:"avg_response_time"`
	MinResponseTime    float64 `json:"min_response_time"`
	MaxResponseTime    float64 `json:"max_response_time"`
	TotalTokens        int     `json:"total_tokens"`
	AvgTokens          float64 `json:"avg_tokens"`
	AvgSteps           float64 `json:"avg_steps"`
	SuccessRate        float64 `json:"success_rate"`
	ErrorRate          float64 `json:"error_rate"`
	TotalRatings       int     `json:"total_ratings"`
	SatisfactionScore  float64 `json:"satisfaction_score"`
}

// AgentSummary is a Summary slice grouped by capability identifier.
type AgentSummary struct {
	AgentUsed       string  `json:"agent_used"`
	Conversations   int     `json:"conversations"`
	AvgResponseTime float64 `json:"avg_response_time"`
	AvgTokens       float64 `json:"avg_tokens"`
	SuccessRate     float64 `json:"success_rate"`
}

// DailyTrend is one aggregate row per calendar day.
type DailyTrend struct {
	Date            string  `json:"date"`
	Conversations   int     `json:"conversations"`
	AvgResponseTime float64 `json:"avg_response_time"`
	AvgTokens       float64 `json:"avg_tokens"`
	SuccessRate     float64 `json:"success_rate"`
}

// Tracker records per-turn quality metrics. Recording is best-effort for
// callers on the request path: a tracker failure must never fail the
// user-facing request, so the orchestrator logs and drops Record errors.
type Tracker interface {
	Record(ctx context.Context, rec Record) error

	// Summary aggregates records from the trailing window of whole days.
	Summary(ctx context.Context, days int) (*Summary, error)
	ByCapability(ctx context.Context, days int) ([]AgentSummary, error)
	DailyTrend(ctx context.Context, days int) ([]DailyTrend, error)

	// AttachRating updates the most recent record for the conversation.
	// If no record exists it is a no-op.
	AttachRating(ctx context.Context, conversationID string, rating int) error

	Close() error
}

// EstimateTokens approximates a token count as length/4. This is a cheap
// heuristic, not a tokenizer; roughly 4 characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
