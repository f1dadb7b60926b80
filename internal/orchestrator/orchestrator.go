// Package orchestrator ties one chat turn together: load history, build
// context, route, persist, record telemetry.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/shopchat/internal/agent"
	"github.com/xaenox/shopchat/internal/models"
	"github.com/xaenox/shopchat/internal/storage"
	"github.com/xaenox/shopchat/internal/telemetry"
	"go.uber.org/zap"
)

// Limits bounds how much history feeds a turn.
type Limits struct {
	HistoryMessages int // loaded from the store
	ContextMessages int // kept for the prompt
}

// DefaultLimits mirrors the shipped configuration defaults.
var DefaultLimits = Limits{HistoryMessages: 20, ContextMessages: 10}

type TurnRequest struct {
	Message   string
	UserID    string
	SessionID string
}

type TurnResponse struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Orchestrator handles chat turns. Each call is independent; the store is
// the serialization point for concurrent turns on one session.
type Orchestrator struct {
	store   storage.ConversationStore
	tracker telemetry.Tracker
	router  *agent.Router
	limits  Limits
	logger  *zap.Logger
}

func New(store storage.ConversationStore, tracker telemetry.Tracker, router *agent.Router, limits Limits, logger *zap.Logger) *Orchestrator {
	if limits.HistoryMessages <= 0 {
		limits.HistoryMessages = DefaultLimits.HistoryMessages
	}
	if limits.ContextMessages <= 0 {
		limits.ContextMessages = DefaultLimits.ContextMessages
	}
	return &Orchestrator{
		store:   store,
		tracker: tracker,
		router:  router,
		limits:  limits,
		logger:  logger,
	}
}

// HandleTurn processes one user message. Exactly one quality record is
// written per call, on the success and the failure path alike.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	// Identifiers are resolved before anything that can fail, so the
	// failure path always has a valid conversation id.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	userID := req.UserID
	if userID == "" {
		userID = sessionID
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	start := time.Now()

	history, err := o.store.GetHistory(ctx, sessionID, o.limits.HistoryMessages)
	if err != nil {
		o.recordFailure(sessionID, time.Since(start))
		return nil, fmt.Errorf("error loading history: %w", err)
	}

	cc := agent.BuildContext(history, o.limits.HistoryMessages, o.limits.ContextMessages)

	result, err := o.router.Route(ctx, req.Message, cc)
	if err != nil {
		o.recordFailure(sessionID, time.Since(start))
		return nil, fmt.Errorf("error routing message: %w", err)
	}

	// User message first, then the reply; a crash between the two writes
	// can orphan the user message, which is an accepted limitation.
	if err := o.store.AppendMessage(ctx, sessionID, models.RoleUser, req.Message, userID); err != nil {
		o.recordFailure(sessionID, time.Since(start))
		return nil, fmt.Errorf("error persisting user message: %w", err)
	}
	if err := o.store.AppendMessage(ctx, sessionID, models.RoleAssistant, result.Reply, userID); err != nil {
		o.recordFailure(sessionID, time.Since(start))
		return nil, fmt.Errorf("error persisting reply: %w", err)
	}

	tokens := telemetry.EstimateTokens(req.Message + result.Reply)
	latency := time.Since(start)
	o.record(telemetry.Record{
		ConversationID: sessionID,
		ResponseTime:   latency.Seconds(),
		TokensUsed:     &tokens,
		StepsCount:     result.Steps,
		AgentUsed:      result.AgentUsed,
		Success:        true,
	})

	o.logger.Info("Turn processed",
		zap.String("session_id", sessionID),
		zap.String("agent_used", result.AgentUsed),
		zap.Duration("latency", latency),
		zap.Int("tokens", tokens),
		zap.Int("steps", result.Steps))

	return &TurnResponse{
		Response:  result.Reply,
		SessionID: sessionID,
		UserID:    userID,
		Metadata: map[string]any{
			"agent_used": result.AgentUsed,
			"steps":      result.Steps,
		},
	}, nil
}

func (o *Orchestrator) recordFailure(sessionID string, latency time.Duration) {
	tokens := 0
	o.record(telemetry.Record{
		ConversationID: sessionID,
		ResponseTime:   latency.Seconds(),
		TokensUsed:     &tokens,
		StepsCount:     0,
		AgentUsed:      agent.CoordinatorAgent,
		Success:        false,
		ErrorOccurred:  true,
	})
}

// record is best-effort: telemetry failures are logged, never surfaced.
func (o *Orchestrator) record(rec telemetry.Record) {
	// Detached from the request context so cancellation cannot drop the
	// record.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.tracker.Record(ctx, rec); err != nil {
		o.logger.Error("Failed to record quality metrics",
			zap.Error(err),
			zap.String("conversation_id", rec.ConversationID))
	}
}

func newSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
