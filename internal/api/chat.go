package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xaenox/shopchat/internal/models"
	"github.com/xaenox/shopchat/internal/orchestrator"
	"go.uber.org/zap"
)

const (
	defaultSessionLimit = 10
	defaultHistoryLimit = 50
	defaultWindowDays   = 7
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Chat handles one user turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Validation happens before any store access.
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	if req.UserID == "" {
		req.UserID = "guest"
	}

	resp, err := h.orch.HandleTurn(r.Context(), orchestrator.TurnRequest{
		Message:   req.Message,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.logger.Error("Failed to process chat turn",
			zap.Error(err),
			zap.String("session_id", req.SessionID))
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	JSON(w, http.StatusOK, resp)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	history, err := h.store.GetHistory(r.Context(), sessionID, defaultHistoryLimit)
	if err != nil {
		h.logger.Error("Failed to load session history",
			zap.Error(err),
			zap.String("session_id", sessionID))
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if history == nil {
		history = []models.Message{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"history":       history,
		"message_count": len(history),
	})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		h.logger.Error("Failed to delete session",
			zap.Error(err),
			zap.String("session_id", sessionID))
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"status":     "deleted",
		"session_id": sessionID,
	})
}

func (h *Handler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	sessions, err := h.store.ListSessions(r.Context(), userID, defaultSessionLimit)
	if err != nil {
		h.logger.Error("Failed to list sessions",
			zap.Error(err),
			zap.String("user_id", userID))
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (h *Handler) ChatMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.AggregateMetrics(r.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate chat metrics", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	JSON(w, http.StatusOK, metrics)
}

func (h *Handler) QualityMetrics(w http.ResponseWriter, r *http.Request) {
	days := defaultWindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			Error(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	ctx := r.Context()
	summary, err := h.tracker.Summary(ctx, days)
	if err != nil {
		h.logger.Error("Failed to load quality summary", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to load quality metrics")
		return
	}
	byAgent, err := h.tracker.ByCapability(ctx, days)
	if err != nil {
		h.logger.Error("Failed to load per-agent metrics", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to load quality metrics")
		return
	}
	trends, err := h.tracker.DailyTrend(ctx, days)
	if err != nil {
		h.logger.Error("Failed to load metric trends", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to load quality metrics")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"summary":  summary,
		"by_agent": byAgent,
		"trends":   trends,
	})
}

// SaveRating attaches a thumbs up/down to the latest record of a
// conversation.
func (h *Handler) SaveRating(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		Rating *int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rating == nil {
		Error(w, http.StatusBadRequest, "rating is required")
		return
	}
	if *req.Rating != 0 && *req.Rating != 1 {
		Error(w, http.StatusBadRequest, "rating must be 0 or 1")
		return
	}

	if err := h.tracker.AttachRating(r.Context(), conversationID, *req.Rating); err != nil {
		h.logger.Error("Failed to save rating",
			zap.Error(err),
			zap.String("conversation_id", conversationID))
		Error(w, http.StatusInternalServerError, "failed to save rating")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":          "saved",
		"conversation_id": conversationID,
	})
}

func (h *Handler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var prefs models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		Error(w, http.StatusBadRequest, "invalid preferences body")
		return
	}

	if err := h.store.UpsertPreferences(r.Context(), userID, prefs); err != nil {
		h.logger.Error("Failed to save preferences",
			zap.Error(err),
			zap.String("user_id", userID))
		Error(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"status":  "saved",
		"user_id": userID,
	})
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	prefs, err := h.store.GetPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to load preferences",
			zap.Error(err),
			zap.String("user_id", userID))
		Error(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	if prefs == nil {
		prefs = models.Preferences{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"preferences": prefs,
	})
}
