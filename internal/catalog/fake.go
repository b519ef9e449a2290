package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemorySource is an in-process catalog used by tests and local development seeds.
type MemorySource struct {
	mu         sync.RWMutex
	products   map[string]Product
	categories []Category
	// Lookups counts Product calls so callers can assert when the catalog was consulted.
	Lookups int
}

// NewMemorySource seeds a memory catalog with the provided products.
func NewMemorySource(products ...Product) *MemorySource {
	m := &MemorySource{products: make(map[string]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put inserts or replaces a product.
func (m *MemorySource) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// SetCategories replaces the category list.
func (m *MemorySource) SetCategories(categories ...Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append([]Category(nil), categories...)
}

// Product implements Source.
func (m *MemorySource) Product(_ context.Context, id string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// List implements Source. Newest first, ties by id.
func (m *MemorySource) List(_ context.Context, params ListParams) (ListResult, error) {
	params = params.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		if params.Matches(p) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := int64(len(matched))
	start := params.offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return ListResult{Items: matched[start:end], Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// Categories implements Source.
func (m *MemorySource) Categories(context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Category(nil), m.categories...), nil
}
