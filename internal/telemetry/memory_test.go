package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcdefghi"))
	// Deterministic
	assert.Equal(t, EstimateTokens("hello world"), EstimateTokens("hello world"))
}

func TestSummaryEmptyWindow(t *testing.T) {
	tracker := NewMemoryTracker()

	summary, err := tracker.Summary(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalConversations)
	assert.Equal(t, 0.0, summary.SuccessRate)
	assert.Equal(t, 0.0, summary.SatisfactionScore)
}

func TestSummaryAggregates(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	require.NoError(t, tracker.Record(ctx, Record{
		ConversationID: "c1", ResponseTime: 1.0, TokensUsed: intPtr(100),
		StepsCount: 2, AgentUsed: "CoordinatorAgent", Success: true,
	}))
	require.NoError(t, tracker.Record(ctx, Record{
		ConversationID: "c2", ResponseTime: 3.0, TokensUsed: intPtr(200),
		StepsCount: 4, AgentUsed: "ProductAgent", Success: false, ErrorOccurred: true,
	}))

	summary, err := tracker.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalConversations)
	assert.Equal(t, 2.0, summary.AvgResponseTime)
	assert.Equal(t, 1.0, summary.MinResponseTime)
	assert.Equal(t, 3.0, summary.MaxResponseTime)
	assert.Equal(t, 300, summary.TotalTokens)
	assert.Equal(t, 150.0, summary.AvgTokens)
	assert.Equal(t, 3.0, summary.AvgSteps)
	assert.Equal(t, 50.0, summary.SuccessRate)
	assert.Equal(t, 50.0, summary.ErrorRate)
}

func TestSummaryWindowExcludesOldRecords(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	require.NoError(t, tracker.Record(ctx, Record{
		ConversationID: "old", ResponseTime: 1.0, StepsCount: 1,
		AgentUsed: "CoordinatorAgent", Success: true,
		Timestamp: time.Now().AddDate(0, 0, -30),
	}))
	require.NoError(t, tracker.Record(ctx, Record{
		ConversationID: "new", ResponseTime: 1.0, StepsCount: 1,
		AgentUsed: "CoordinatorAgent", Success: true,
	}))

	summary, err := tracker.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalConversations)
}

func TestByCapabilityGrouping(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Record(ctx, Record{
			ConversationID: "c", ResponseTime: 1.0, StepsCount: 1,
			AgentUsed: "ProductAgent", Success: true,
		}))
	}
	require.NoError(t, tracker.Record(ctx, Record{
		ConversationID: "c", ResponseTime: 2.0, StepsCount: 1,
		AgentUsed: "CalculationAgent", Success: false,
	}))

	summaries, err := tracker.ByCapability(ctx, 7)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byAgent := map[string]AgentSummary{}
	for _, s := range summaries {
		byAgent[s.AgentUsed] = s
	}
	assert.Equal(t, 3, byAgent["ProductAgent"].Conversations)
	assert.Equal(t, 100.0, byAgent["ProductAgent"].SuccessRate)
	assert.Equal(t, 1, byAgent["CalculationAgent"].Conversations)
	assert.Equal(t, 0.0, byAgent["CalculationAgent"].SuccessRate)
}

func TestAttachRatingUpdatesNewestOnly(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	require.NoError(t, tracker.Record(ctx, Record{ConversationID: "c1", AgentUsed: "CoordinatorAgent", Success: true}))
	require.NoError(t, tracker.Record(ctx, Record{ConversationID: "c1", AgentUsed: "CoordinatorAgent", Success: true}))

	require.NoError(t, tracker.AttachRating(ctx, "c1", 1))

	records := tracker.Records()
	require.Len(t, records, 2)
	assert.Nil(t, records[0].UserRating)
	require.NotNil(t, records[1].UserRating)
	assert.Equal(t, 1, *records[1].UserRating)

	summary, err := tracker.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalRatings)
	assert.Equal(t, 100.0, summary.SatisfactionScore)
}

func TestAttachRatingUnknownConversationNoop(t *testing.T) {
	tracker := NewMemoryTracker()
	require.NoError(t, tracker.AttachRating(context.Background(), "missing", 1))
	assert.Empty(t, tracker.Records())
}

func TestDailyTrendGroupsByDay(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, tracker.Record(ctx, Record{ConversationID: "c1", AgentUsed: "CoordinatorAgent", Success: true, Timestamp: yesterday}))
	require.NoError(t, tracker.Record(ctx, Record{ConversationID: "c2", AgentUsed: "CoordinatorAgent", Success: true}))

	trends, err := tracker.DailyTrend(ctx, 7)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, yesterday.Format("2006-01-02"), trends[0].Date)
	assert.Equal(t, 1, trends[0].Conversations)
}
