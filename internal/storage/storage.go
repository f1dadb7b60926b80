package storage

import (
	"context"

	"github.com/xaenox/shopchat/internal/models"
)

// ConversationStore is the single source of truth for chat history,
// session metadata and user preferences.
type ConversationStore interface {
	// AppendMessage creates the session if it does not exist yet,
	// bumps its last-active timestamp and appends an immutable message.
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content, userID string) error

	// GetHistory returns up to limit most recent messages for the
	// session, oldest first.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error)

	// ListSessions returns up to limit sessions owned by the user,
	// most recently active first.
	ListSessions(ctx context.Context, userID string, limit int) ([]models.Session, error)

	// DeleteSession removes the session and all of its messages.
	// Deleting a session that does not exist is a no-op.
	DeleteSession(ctx context.Context, sessionID string) error

	UpsertPreferences(ctx context.Context, userID string, prefs models.Preferences) error
	GetPreferences(ctx context.Context, userID string) (models.Preferences, error)

	AggregateMetrics(ctx context.Context) (*models.ChatMetrics, error)

	Close() error
}
