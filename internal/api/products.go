package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xaenox/shopchat/internal/catalog"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	inStockOnly := r.URL.Query().Get("in_stock_only") == "true"

	products := h.catalog.List(category, inStockOnly)
	if products == nil {
		products = []catalog.Product{}
	}
	JSON(w, http.StatusOK, products)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.catalog.Categories())
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	product := h.catalog.Get(productID)
	if product == nil {
		Error(w, http.StatusNotFound, fmt.Sprintf("Product '%s' not found", productID))
		return
	}
	JSON(w, http.StatusOK, product)
}

func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	var filter catalog.SearchFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		Error(w, http.StatusBadRequest, "invalid search body")
		return
	}

	products := h.catalog.Search(filter)
	if products == nil {
		products = []catalog.Product{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"count":    len(products),
		"products": products,
	})
}

func (h *Handler) CheckStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	info := h.catalog.CheckStock(productID)
	if info == nil {
		Error(w, http.StatusNotFound, fmt.Sprintf("Product '%s' not found", productID))
		return
	}
	JSON(w, http.StatusOK, info)
}
