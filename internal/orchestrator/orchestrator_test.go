package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/shopchat/internal/agent"
	"github.com/xaenox/shopchat/internal/catalog"
	"github.com/xaenox/shopchat/internal/models"
	"github.com/xaenox/shopchat/internal/reasoning"
	"github.com/xaenox/shopchat/internal/storage"
	"github.com/xaenox/shopchat/internal/telemetry"
	"go.uber.org/zap"
)

type fakeEngine struct {
	mu        sync.Mutex
	responses []reasoning.CompletionResponse
	err       error
	calls     int
}

func (f *fakeEngine) Complete(ctx context.Context, req reasoning.CompletionRequest) (reasoning.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return reasoning.CompletionResponse{}, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

func reply(text string) reasoning.CompletionResponse {
	return reasoning.CompletionResponse{
		Message: reasoning.Message{Role: reasoning.RoleAssistant, Content: text},
	}
}

type fixture struct {
	orch    *Orchestrator
	store   *storage.MemoryStorage
	tracker *telemetry.MemoryTracker
}

func newFixture(t *testing.T, engine reasoning.Engine) *fixture {
	t.Helper()
	cat, err := catalog.New()
	require.NoError(t, err)

	store := storage.NewMemoryStorage()
	tracker := telemetry.NewMemoryTracker()
	router := agent.NewRouter(engine, cat, 5, zap.NewNop())
	return &fixture{
		orch:    New(store, tracker, router, DefaultLimits, zap.NewNop()),
		store:   store,
		tracker: tracker,
	}
}

func TestHandleTurnFirstMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeEngine{responses: []reasoning.CompletionResponse{reply("Hello! How can I help?")}})

	resp, err := f.orch.HandleTurn(ctx, TurnRequest{Message: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", resp.Response)
	assert.Regexp(t, `^session_[0-9a-f]{8}$`, resp.SessionID)
	assert.Equal(t, resp.SessionID, resp.UserID)

	// Both sides of the turn are persisted, user first.
	history, err := f.store.GetHistory(ctx, resp.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Hi", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello! How can I help?", history[1].Content)

	// Exactly one quality record with the expected token estimate.
	records := f.tracker.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.False(t, records[0].ErrorOccurred)
	require.NotNil(t, records[0].TokensUsed)
	assert.Equal(t, len("Hi"+"Hello! How can I help?")/4, *records[0].TokensUsed)
	assert.Equal(t, 1, records[0].StepsCount)
}

func TestHandleTurnKeepsCallerIdentifiers(t *testing.T) {
	f := newFixture(t, &fakeEngine{responses: []reasoning.CompletionResponse{reply("ok")}})

	resp, err := f.orch.HandleTurn(context.Background(), TurnRequest{
		Message:   "hello",
		UserID:    "alice",
		SessionID: "s-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "s-42", resp.SessionID)
	assert.Equal(t, "alice", resp.UserID)
}

func TestHandleTurnEmptyMessageRejectedBeforeStore(t *testing.T) {
	f := newFixture(t, &fakeEngine{responses: []reasoning.CompletionResponse{reply("ok")}})

	_, err := f.orch.HandleTurn(context.Background(), TurnRequest{Message: "   "})
	require.Error(t, err)
	metrics, merr := f.store.AggregateMetrics(context.Background())
	require.NoError(t, merr)
	assert.Equal(t, 0, metrics.TotalMessages)
	assert.Empty(t, f.tracker.Records())
}

func TestHandleTurnEngineFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeEngine{err: errors.New("upstream unavailable")})

	_, err := f.orch.HandleTurn(ctx, TurnRequest{Message: "Hi", SessionID: "s-1"})
	require.Error(t, err)

	// No messages are persisted for a failed turn.
	history, herr := f.store.GetHistory(ctx, "s-1", 10)
	require.NoError(t, herr)
	assert.Empty(t, history)

	// The failure still produces exactly one quality record.
	records := f.tracker.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.True(t, records[0].ErrorOccurred)
	assert.Equal(t, "s-1", records[0].ConversationID)
	require.NotNil(t, records[0].TokensUsed)
	assert.Equal(t, 0, *records[0].TokensUsed)
	assert.Equal(t, 0, records[0].StepsCount)
}

func TestHandleTurnMalformedEngineOutputStillSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeEngine{responses: []reasoning.CompletionResponse{{}}})

	resp, err := f.orch.HandleTurn(ctx, TurnRequest{Message: "Hi", SessionID: "s-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Response)

	records := f.tracker.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
}

func TestHandleTurnContextCarriesHistory(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{responses: []reasoning.CompletionResponse{reply("Nice to meet you, Ana."), reply("Your name is Ana.")}}
	f := newFixture(t, engine)

	first, err := f.orch.HandleTurn(ctx, TurnRequest{Message: "my name is Ana", SessionID: "s-1"})
	require.NoError(t, err)
	require.NotEmpty(t, first.Response)

	second, err := f.orch.HandleTurn(ctx, TurnRequest{Message: "what's my name?", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "Your name is Ana.", second.Response)

	history, err := f.store.GetHistory(ctx, "s-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestHandleTurnConcurrentSessionsProceedIndependently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeEngine{responses: []reasoning.CompletionResponse{reply("ok")}})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.HandleTurn(ctx, TurnRequest{Message: "hello"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every turn created its own session with exactly one record.
	metrics, err := f.store.AggregateMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, metrics.TotalConversations)
	assert.Equal(t, 20, metrics.TotalMessages)
	assert.Len(t, f.tracker.Records(), 10)
}
