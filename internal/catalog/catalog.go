// Package catalog is the read-only product catalog collaborator. Lookups
// are flat linear filters over a small embedded document.
package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed products.json
var productsFile embed.FS

// Product is one catalog entry.
type Product struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Category        string         `json:"category"`
	Price           float64        `json:"price"`
	Stock           int            `json:"stock"`
	Specs           map[string]any `json:"specs"`
	Description     string         `json:"description"`
	Tags            []string       `json:"tags"`
	ExpectedRestock string         `json:"expected_restock,omitempty"`
}

// StockInfo describes inventory status for one product.
type StockInfo struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	StockCount  int    `json:"stock_count"`
	StockStatus string `json:"stock_status"`
	Message     string `json:"message"`
}

// SearchFilter narrows a catalog search. Zero values mean "no filter".
type SearchFilter struct {
	Query    string   `json:"query,omitempty"`
	Category string   `json:"category,omitempty"`
	MaxPrice float64  `json:"max_price,omitempty"`
	MinStock int      `json:"min_stock,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type Catalog struct {
	products   []Product
	categories []string
}

type catalogFile struct {
	Categories []string  `json:"categories"`
	Products   []Product `json:"products"`
}

// New loads the embedded product database.
func New() (*Catalog, error) {
	data, err := productsFile.ReadFile("products.json")
	if err != nil {
		return nil, fmt.Errorf("error reading product database: %v", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing product database: %v", err)
	}

	return &Catalog{products: file.Products, categories: file.Categories}, nil
}

// List returns products, optionally filtered by category and stock.
func (c *Catalog) List(category string, inStockOnly bool) []Product {
	var out []Product
	for _, p := range c.products {
		if category != "" && p.Category != category {
			continue
		}
		if inStockOnly && p.Stock == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (c *Catalog) Categories() []string {
	return c.categories
}

// Get returns the product with the given id, or nil if absent.
func (c *Catalog) Get(productID string) *Product {
	for i := range c.products {
		if c.products[i].ID == productID {
			return &c.products[i]
		}
	}
	return nil
}

// GetByName returns the first product whose name contains the given text,
// case-insensitively.
func (c *Catalog) GetByName(name string) *Product {
	needle := strings.ToLower(name)
	for i := range c.products {
		if strings.Contains(strings.ToLower(c.products[i].Name), needle) {
			return &c.products[i]
		}
	}
	return nil
}

// Names returns up to limit product names, used for "not found" replies.
func (c *Catalog) Names(limit int) []string {
	var names []string
	for _, p := range c.products {
		if len(names) >= limit {
			break
		}
		names = append(names, p.Name)
	}
	return names
}

// Search applies all filters and returns matching products.
func (c *Catalog) Search(filter SearchFilter) []Product {
	var out []Product
	query := strings.ToLower(filter.Query)
	for _, p := range c.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.MaxPrice > 0 && p.Price > filter.MaxPrice {
			continue
		}
		if p.Stock < filter.MinStock {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if len(filter.Tags) > 0 && !matchesAnyTag(p.Tags, filter.Tags) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesAnyTag(productTags, searchTags []string) bool {
	for _, st := range searchTags {
		for _, pt := range productTags {
			if strings.EqualFold(pt, st) {
				return true
			}
		}
	}
	return false
}

// CheckStock reports inventory status for one product, or nil if the
// product does not exist.
func (c *Catalog) CheckStock(productID string) *StockInfo {
	p := c.Get(productID)
	if p == nil {
		return nil
	}
	return c.stockInfo(p)
}

// CheckStockByName is CheckStock with a fuzzy name lookup.
func (c *Catalog) CheckStockByName(name string) *StockInfo {
	p := c.GetByName(name)
	if p == nil {
		return nil
	}
	return c.stockInfo(p)
}

func (c *Catalog) stockInfo(p *Product) *StockInfo {
	info := &StockInfo{
		ProductID:   p.ID,
		ProductName: p.Name,
		StockCount:  p.Stock,
	}

	switch {
	case p.Stock == 0:
		info.StockStatus = "Out of Stock"
		info.Message = fmt.Sprintf("%s is currently out of stock.", p.Name)
		if p.ExpectedRestock != "" {
			info.Message += fmt.Sprintf(" Expected restock: %s", p.ExpectedRestock)
		}
	case p.Stock < 10:
		info.StockStatus = "Low Stock"
		info.Message = fmt.Sprintf("%s is in low stock (%d units remaining). Order soon!", p.Name, p.Stock)
	default:
		info.StockStatus = "In Stock"
		info.Message = fmt.Sprintf("%s is in stock (%d units available).", p.Name, p.Stock)
	}
	return info
}
