package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"

	_ "github.com/lib/pq"
	"github.com/xaenox/shopchat/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

// DB exposes the underlying handle so other components (telemetry) can
// share the same connection pool.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, sessionID string, role models.Role, content, userID string) error {
	if userID == "" {
		userID = sessionID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("error ensuring session: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE chat_sessions
		SET last_active = now()
		WHERE session_id = $1`,
		sessionID)
	if err != nil {
		return fmt.Errorf("error updating session activity: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content)
		VALUES ($1, $2, $3)`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("error appending message: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing message: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	// Take the newest rows, then flip back to chronological order.
	query := `
		SELECT id, session_id, role, content, timestamp
		FROM (
			SELECT id, session_id, role, content, timestamp
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %v", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *PostgresStorage) ListSessions(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	query := `
		SELECT session_id, user_id, created_at, last_active
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY last_active DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %v", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		err := rows.Scan(&sess.SessionID, &sess.UserID, &sess.CreatedAt, &sess.LastActive)
		if err != nil {
			return nil, fmt.Errorf("error scanning session: %v", err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

func (s *PostgresStorage) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("error deleting messages: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("error deleting session: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing delete: %v", err)
	}

	return nil
}

func (s *PostgresStorage) UpsertPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("error encoding preferences: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, preferences, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET preferences = EXCLUDED.preferences, updated_at = now()`,
		userID, data)
	if err != nil {
		return fmt.Errorf("error upserting preferences: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetPreferences(ctx context.Context, userID string) (models.Preferences, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT preferences
		FROM user_preferences
		WHERE user_id = $1`,
		userID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying preferences: %v", err)
	}

	var prefs models.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("error decoding preferences: %v", err)
	}

	return prefs, nil
}

func (s *PostgresStorage) AggregateMetrics(ctx context.Context) (*models.ChatMetrics, error) {
	metrics := &models.ChatMetrics{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM chat_messages),
			(SELECT COUNT(*) FROM chat_sessions WHERE last_active >= now() - interval '24 hours')`,
	).Scan(&metrics.TotalConversations, &metrics.TotalMessages, &metrics.ActiveSessions)
	if err != nil {
		return nil, fmt.Errorf("error querying metrics: %v", err)
	}

	if metrics.TotalConversations > 0 {
		avg := float64(metrics.TotalMessages) / float64(metrics.TotalConversations)
		metrics.AvgMessagesPerConv = math.Round(avg*100) / 100
	}

	return metrics, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
