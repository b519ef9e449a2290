package reviews

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/noah-isme/storefront/internal/catalog"
)

// MemoryStore keeps reviews in process and mirrors aggregates into a memory catalog. Used for
// local runs and tests.
type MemoryStore struct {
	Catalog *catalog.MemorySource

	mu      sync.Mutex
	reviews map[string][]Review
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, review Review) (Review, error) {
	var product catalog.Product
	if m.Catalog != nil {
		p, err := m.Catalog.Product(ctx, review.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return Review{}, ErrProductNotFound
		}
		if err != nil {
			return Review{}, err
		}
		product = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reviews == nil {
		m.reviews = make(map[string][]Review)
	}
	existing := m.reviews[review.ProductID]
	for _, r := range existing {
		if r.UserID == review.UserID {
			return Review{}, ErrAlreadyReviewed
		}
	}
	existing = append(existing, review)
	m.reviews[review.ProductID] = existing

	if m.Catalog != nil {
		sum := 0
		for _, r := range existing {
			sum += r.Rating
		}
		product.NumReviews = len(existing)
		product.Rating = float64(sum) / float64(len(existing))
		m.Catalog.Put(product)
	}
	return review, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, productID string, limit, offset int) ([]Review, int64, error) {
	m.mu.Lock()
	all := append([]Review(nil), m.reviews[productID]...)
	m.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return all[start:end], total, nil
}
