package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/shopchat/internal/models"
)

// MemoryStorage is an in-memory ConversationStore used for local
// development and tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
	prefs    map[string]models.Preferences
	nextID   int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
		prefs:    make(map[string]models.Preferences),
	}
}

func (s *MemoryStorage) AppendMessage(ctx context.Context, sessionID string, role models.Role, content, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess, exists := s.sessions[sessionID]
	if !exists {
		owner := userID
		if owner == "" {
			owner = sessionID
		}
		sess = &models.Session{
			SessionID: sessionID,
			UserID:    owner,
			CreatedAt: now,
		}
		s.sessions[sessionID] = sess
	}
	sess.LastActive = now

	s.nextID++
	s.messages[sessionID] = append(s.messages[sessionID], models.Message{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	return nil
}

func (s *MemoryStorage) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStorage) ListSessions(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sessions = append(sessions, *sess)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *MemoryStorage) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStorage) UpsertPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[userID] = prefs
	return nil
}

func (s *MemoryStorage) GetPreferences(ctx context.Context, userID string) (models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if prefs, exists := s.prefs[userID]; exists {
		return prefs, nil
	}
	return nil, nil
}

func (s *MemoryStorage) AggregateMetrics(ctx context.Context) (*models.ChatMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := &models.ChatMetrics{
		TotalConversations: len(s.sessions),
	}
	for _, msgs := range s.messages {
		metrics.TotalMessages += len(msgs)
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, sess := range s.sessions {
		if sess.LastActive.After(cutoff) {
			metrics.ActiveSessions++
		}
	}

	if metrics.TotalConversations > 0 {
		avg := float64(metrics.TotalMessages) / float64(metrics.TotalConversations)
		metrics.AvgMessagesPerConv = math.Round(avg*100) / 100
	}
	return metrics, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
