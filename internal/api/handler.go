// Package api provides the HTTP handlers for the support chat API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/xaenox/shopchat/internal/catalog"
	"github.com/xaenox/shopchat/internal/middleware"
	"github.com/xaenox/shopchat/internal/orchestrator"
	"github.com/xaenox/shopchat/internal/storage"
	"github.com/xaenox/shopchat/internal/telemetry"
	"go.uber.org/zap"
)

// Handler carries the shared dependencies for all routes.
type Handler struct {
	orch           *orchestrator.Orchestrator
	store          storage.ConversationStore
	tracker        telemetry.Tracker
	catalog        *catalog.Catalog
	allowedOrigins []string
	logger         *zap.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, store storage.ConversationStore, tracker telemetry.Tracker, cat *catalog.Catalog, allowedOrigins []string, logger *zap.Logger) *Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Handler{
		orch:           orch,
		store:          store,
		tracker:        tracker,
		catalog:        cat,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Routes builds the full router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(h.allowedOrigins))

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/api/v1/chat", func(r chi.Router) {
		r.Post("/", h.Chat)
		r.Get("/metrics", h.ChatMetrics)
		r.Get("/quality-metrics", h.QualityMetrics)
		r.Post("/quality-metrics/{conversationID}/rating", h.SaveRating)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Delete("/sessions/{sessionID}", h.DeleteSession)
		r.Get("/users/{userID}/sessions", h.ListUserSessions)
		r.Post("/users/{userID}/preferences", h.SavePreferences)
		r.Get("/users/{userID}/preferences", h.GetPreferences)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/categories", h.ListCategories)
		r.Post("/search", h.SearchProducts)
		r.Get("/{productID}", h.GetProduct)
		r.Get("/{productID}/stock", h.CheckStock)
	})

	r.Route("/metrics", func(r chi.Router) {
		r.Get("/overview", h.MetricsOverview)
		r.Get("/products/by-category", h.ProductsByCategory)
	})

	return r
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"message": "E-Commerce Support API",
		"status":  "running",
		"endpoints": map[string]string{
			"chat":     "/api/v1/chat",
			"products": "/products",
			"metrics":  "/metrics/overview",
			"health":   "/health",
		},
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ecommerce-support-api",
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
