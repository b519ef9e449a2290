package catalog

import (
	"context"
	"fmt"
)

const (
	defaultRelatedLimit = 4
	maxRelatedLimit     = 12
)

// Related returns up to limit other products from the same category as id, newest first.
// A product without a category has no related products.
func Related(ctx context.Context, src Source, id string, limit int) ([]Product, error) {
	product, err := src.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.CategoryID == "" {
		return []Product{}, nil
	}
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	limit = min(limit, maxRelatedLimit)
	result, err := src.List(ctx, ListParams{Category: product.CategoryID, ExcludeID: product.ID, Page: 1, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("catalog: related products: %w", err)
	}
	if result.Items == nil {
		return []Product{}, nil
	}
	return result.Items, nil
}
