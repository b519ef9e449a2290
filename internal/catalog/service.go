package catalog

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested product or category does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Product is the read-only catalog entry consulted when a shopper adds to cart.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Image        string          `json:"image"`
	Brand        string          `json:"brand"`
	Description  string          `json:"description,omitempty"`
	CategoryID   string          `json:"categoryId,omitempty"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock"`
	Rating       float64         `json:"rating"`
	NumReviews   int             `json:"numReviews"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool { return p.CountInStock > 0 }

// Category represents the public category payload.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListParams captures filters for product listing. Empty fields do not filter.
type ListParams struct {
	Keyword string
	// Category and Categories are merged; a product matches any of them.
	Category   string
	Categories []string
	// Brands match case-insensitively.
	Brands       []string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	MinRating    float64
	MinReviews   int
	CreatedAfter time.Time
	ExcludeID    string
	Page         int
	Limit        int
}

const (
	// TopRatedMinRating and TopRatedMinReviews define the "top rated" shelf: a rating of at
	// least 4 from more than 10 reviews.
	TopRatedMinRating  = 4.0
	TopRatedMinReviews = 11
	// NewArrivalWindow is how long a product counts as new.
	NewArrivalWindow = 30 * 24 * time.Hour
)

// TopRated narrows the listing to the top rated shelf.
func (p ListParams) TopRated() ListParams {
	p.MinRating = max(p.MinRating, TopRatedMinRating)
	p.MinReviews = max(p.MinReviews, TopRatedMinReviews)
	return p
}

// NewArrivals narrows the listing to products created within NewArrivalWindow of now.
func (p ListParams) NewArrivals(now time.Time) ListParams {
	if since := now.Add(-NewArrivalWindow); since.After(p.CreatedAfter) {
		p.CreatedAfter = since
	}
	return p
}

func (p ListParams) categoryIDs() []string {
	return cleanSet(append([]string{p.Category}, p.Categories...), false)
}

func (p ListParams) brandNames() []string {
	return cleanSet(p.Brands, true)
}

// Matches reports whether product passes every filter except paging.
func (p ListParams) Matches(product Product) bool {
	if kw := strings.TrimSpace(p.Keyword); kw != "" && !strings.Contains(strings.ToLower(product.Name), strings.ToLower(kw)) {
		return false
	}
	if ids := p.categoryIDs(); len(ids) > 0 && !slices.Contains(ids, product.CategoryID) {
		return false
	}
	if brands := p.brandNames(); len(brands) > 0 && !slices.Contains(brands, strings.ToLower(product.Brand)) {
		return false
	}
	if p.MinPrice != nil && product.Price.LessThan(*p.MinPrice) {
		return false
	}
	if p.MaxPrice != nil && product.Price.GreaterThan(*p.MaxPrice) {
		return false
	}
	if product.Rating < p.MinRating || product.NumReviews < p.MinReviews {
		return false
	}
	if !p.CreatedAfter.IsZero() && product.CreatedAt.Before(p.CreatedAfter) {
		return false
	}
	return p.ExcludeID == "" || product.ID != p.ExcludeID
}

func cleanSet(values []string, lower bool) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
