package api

import (
	"math"
	"net/http"

	"go.uber.org/zap"
)

// MetricsOverview combines conversation metrics with inventory stats for
// the dashboard.
func (h *Handler) MetricsOverview(w http.ResponseWriter, r *http.Request) {
	chat, err := h.store.AggregateMetrics(r.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate chat metrics", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	products := h.catalog.List("", false)
	inStock, lowStock := 0, 0
	for _, p := range products {
		if p.Stock > 0 {
			inStock++
		}
		if p.Stock > 0 && p.Stock < 10 {
			lowStock++
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"conversations": map[string]any{
			"total":                         chat.TotalConversations,
			"total_messages":                chat.TotalMessages,
			"avg_messages_per_conversation": chat.AvgMessagesPerConv,
			"active_sessions_24h":           chat.ActiveSessions,
		},
		"products": map[string]any{
			"total":        len(products),
			"in_stock":     inStock,
			"out_of_stock": len(products) - inStock,
			"low_stock":    lowStock,
		},
		"agents": map[string]any{
			// One call per user/assistant message pair.
			"total_calls": chat.TotalMessages / 2,
		},
	})
}

// ProductsByCategory reports the catalog distribution per category.
func (h *Handler) ProductsByCategory(w http.ResponseWriter, r *http.Request) {
	products := h.catalog.List("", false)
	total := len(products)

	var distribution []map[string]any
	for _, category := range h.catalog.Categories() {
		count, inStock := 0, 0
		for _, p := range products {
			if p.Category != category {
				continue
			}
			count++
			if p.Stock > 0 {
				inStock++
			}
		}

		percentage := 0.0
		if total > 0 {
			percentage = math.Round(float64(count)/float64(total)*1000) / 10
		}
		distribution = append(distribution, map[string]any{
			"category":   category,
			"count":      count,
			"percentage": percentage,
			"in_stock":   inStock,
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"total_products": total,
		"categories":     distribution,
	})
}
