package telemetry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed migrations.sql
var migrations embed.FS

// PostgresTracker persists quality records. It shares the connection pool
// opened by the conversation store.
type PostgresTracker struct {
	db *sql.DB
}

func NewPostgresTracker(db *sql.DB) (*PostgresTracker, error) {
	tracker := &PostgresTracker{db: db}

	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return nil, fmt.Errorf("error reading migrations file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return nil, fmt.Errorf("error executing migrations: %v", err)
	}

	return tracker, nil
}

func (t *PostgresTracker) Record(ctx context.Context, rec Record) error {
	var tokens sql.NullInt64
	if rec.TokensUsed != nil {
		tokens = sql.NullInt64{Int64: int64(*rec.TokensUsed), Valid: true}
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO quality_metrics
			(conversation_id, response_time, tokens_used, steps_count, agent_used, success, error_occurred)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ConversationID, rec.ResponseTime, tokens, rec.StepsCount,
		rec.AgentUsed, rec.Success, rec.ErrorOccurred)
	if err != nil {
		return fmt.Errorf("error recording quality metrics: %v", err)
	}
	return nil
}

func (t *PostgresTracker) Summary(ctx context.Context, days int) (*Summary, error) {
	// The window is bound as a parameter, never interpolated.
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(response_time), 0),
			COALESCE(MIN(response_time), 0),
			COALESCE(MAX(response_time), 0),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(AVG(tokens_used), 0),
			COALESCE(AVG(steps_count), 0),
			COUNT(*) FILTER (WHERE success) * 100.0 / GREATEST(COUNT(*), 1),
			COUNT(*) FILTER (WHERE error_occurred) * 100.0 / GREATEST(COUNT(*), 1),
			COUNT(user_rating),
			COALESCE(AVG(user_rating) * 100, 0)
		FROM quality_metrics
		WHERE timestamp >= now() - $1 * interval '1 day'`

	summary := &Summary{}
	err := t.db.QueryRowContext(ctx, query, days).Scan(
		&summary.TotalConversations,
		&summary.AvgResponseTime,
		&summary.MinResponseTime,
		&summary.MaxResponseTime,
		&summary.TotalTokens,
		&summary.AvgTokens,
		&summary.AvgSteps,
		&summary.SuccessRate,
		&summary.ErrorRate,
		&summary.TotalRatings,
		&summary.SatisfactionScore,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying metrics summary: %v", err)
	}
	return summary, nil
}

func (t *PostgresTracker) ByCapability(ctx context.Context, days int) ([]AgentSummary, error) {
	query := `
		SELECT
			agent_used,
			COUNT(*),
			COALESCE(AVG(response_time), 0),
			COALESCE(AVG(tokens_used), 0),
			COUNT(*) FILTER (WHERE success) * 100.0 / GREATEST(COUNT(*), 1)
		FROM quality_metrics
		WHERE timestamp >= now() - $1 * interval '1 day'
		GROUP BY agent_used
		ORDER BY COUNT(*) DESC`

	rows, err := t.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("error querying metrics by agent: %v", err)
	}
	defer rows.Close()

	var summaries []AgentSummary
	for rows.Next() {
		var s AgentSummary
		err := rows.Scan(&s.AgentUsed, &s.Conversations, &s.AvgResponseTime, &s.AvgTokens, &s.SuccessRate)
		if err != nil {
			return nil, fmt.Errorf("error scanning agent summary: %v", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (t *PostgresTracker) DailyTrend(ctx context.Context, days int) ([]DailyTrend, error) {
	query := `
		SELECT
			to_char(DATE(timestamp), 'YYYY-MM-DD'),
			COUNT(*),
			COALESCE(AVG(response_time), 0),
			COALESCE(AVG(tokens_used), 0),
			COUNT(*) FILTER (WHERE success) * 100.0 / GREATEST(COUNT(*), 1)
		FROM quality_metrics
		WHERE timestamp >= now() - $1 * interval '1 day'
		GROUP BY DATE(timestamp)
		ORDER BY DATE(timestamp)`

	rows, err := t.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("error querying metric trends: %v", err)
	}
	defer rows.Close()

	var trends []DailyTrend
	for rows.Next() {
		var d DailyTrend
		err := rows.Scan(&d.Date, &d.Conversations, &d.AvgResponseTime, &d.AvgTokens, &d.SuccessRate)
		if err != nil {
			return nil, fmt.Errorf("error scanning trend row: %v", err)
		}
		trends = append(trends, d)
	}
	return trends, rows.Err()
}

func (t *PostgresTracker) AttachRating(ctx context.Context, conversationID string, rating int) error {
	// Only the newest record for the conversation is ever updated.
	_, err := t.db.ExecContext(ctx, `
		UPDATE quality_metrics
		SET user_rating = $2
		WHERE id = (
			SELECT id FROM quality_metrics
			WHERE conversation_id = $1
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)`,
		conversationID, rating)
	if err != nil {
		return fmt.Errorf("error saving user rating: %v", err)
	}
	return nil
}

func (t *PostgresTracker) Close() error {
	// The connection pool is owned by the conversation store.
	return nil
}
