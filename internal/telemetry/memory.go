package telemetry

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps quality records in memory for local development
// and tests.
type MemoryTracker struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{}
}

func (t *MemoryTracker) Record(ctx context.Context, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	rec.ID = t.nextID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	t.records = append(t.records, rec)
	return nil
}

func (t *MemoryTracker) windowed(days int) []Record {
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []Record
	for _, rec := range t.records {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

func (t *MemoryTracker) Summary(ctx context.Context, days int) (*Summary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := &Summary{}
	records := t.windowed(days)
	if len(records) == 0 {
		return summary, nil
	}

	var totalLatency, totalSteps, ratingSum float64
	var tokenCount int
	summary.MinResponseTime = records[0].ResponseTime
	for _, rec := range records {
		totalLatency += rec.ResponseTime
		totalSteps += float64(rec.StepsCount)
		if rec.ResponseTime < summary.MinResponseTime {
			summary.MinResponseTime = rec.ResponseTime
		}
		if rec.ResponseTime > summary.MaxResponseTime {
			summary.MaxResponseTime = rec.ResponseTime
		}
		if rec.TokensUsed != nil {
			summary.TotalTokens += *rec.TokensUsed
			tokenCount++
		}
		if rec.Success {
			summary.SuccessRate++
		}
		if rec.ErrorOccurred {
			summary.ErrorRate++
		}
		if rec.UserRating != nil {
			summary.TotalRatings++
			ratingSum += float64(*rec.UserRating)
		}
	}

	n := float64(len(records))
	summary.TotalConversations = len(records)
	summary.AvgResponseTime = totalLatency / n
	summary.AvgSteps = totalSteps / n
	summary.SuccessRate = summary.SuccessRate * 100 / n
	summary.ErrorRate = summary.ErrorRate * 100 / n
	if tokenCount > 0 {
		summary.AvgTokens = float64(summary.TotalTokens) / float64(tokenCount)
	}
	if summary.TotalRatings > 0 {
		summary.SatisfactionScore = ratingSum * 100 / float64(summary.TotalRatings)
	}
	return summary, nil
}

func (t *MemoryTracker) ByCapability(ctx context.Context, days int) ([]AgentSummary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type bucket struct {
		latency, tokens, successes float64
		tokenCount, count          int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, rec := range t.windowed(days) {
		b, exists := buckets[rec.AgentUsed]
		if !exists {
			b = &bucket{}
			buckets[rec.AgentUsed] = b
			order = append(order, rec.AgentUsed)
		}
		b.count++
		b.latency += rec.ResponseTime
		if rec.TokensUsed != nil {
			b.tokens += float64(*rec.TokensUsed)
			b.tokenCount++
		}
		if rec.Success {
			b.successes++
		}
	}

	var summaries []AgentSummary
	for _, agent := range order {
		b := buckets[agent]
		s := AgentSummary{
			AgentUsed:       agent,
			Conversations:   b.count,
			AvgResponseTime: b.latency / float64(b.count),
			SuccessRate:     b.successes * 100 / float64(b.count),
		}
		if b.tokenCount > 0 {
			s.AvgTokens = b.tokens / float64(b.tokenCount)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (t *MemoryTracker) DailyTrend(ctx context.Context, days int) ([]DailyTrend, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type bucket struct {
		latency, tokens, successes float64
		tokenCount, count          int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, rec := range t.windowed(days) {
		day := rec.Timestamp.Format("2006-01-02")
		b, exists := buckets[day]
		if !exists {
			b = &bucket{}
			buckets[day] = b
			order = append(order, day)
		}
		b.count++
		b.latency += rec.ResponseTime
		if rec.TokensUsed != nil {
			b.tokens += float64(*rec.TokensUsed)
			b.tokenCount++
		}
		if rec.Success {
			b.successes++
		}
	}

	var trends []DailyTrend
	for _, day := range order {
		b := buckets[day]
		d := DailyTrend{
			Date:            day,
			Conversations:   b.count,
			AvgResponseTime: b.latency / float64(b.count),
			SuccessRate:     b.successes * 100 / float64(b.count),
		}
		if b.tokenCount > 0 {
			d.AvgTokens = b.tokens / float64(b.tokenCount)
		}
		trends = append(trends, d)
	}
	return trends, nil
}

func (t *MemoryTracker) AttachRating(ctx context.Context, conversationID string, rating int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.records) - 1; i >= 0; i-- {
		if t.records[i].ConversationID == conversationID {
			r := rating
			t.records[i].UserRating = &r
			return nil
		}
	}
	return nil
}

// Records returns a copy of everything recorded so far, oldest first.
func (t *MemoryTracker) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

func (t *MemoryTracker) Close() error {
	return nil
}
