// Package reviews serves product reviews and keeps the catalog's rating aggregates in step.
package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrCommentRequired is returned for a blank comment.
	ErrCommentRequired = errors.New("comment is required")
	// ErrAlreadyReviewed is returned when the user already reviewed the product.
	ErrAlreadyReviewed = errors.New("product already reviewed")
	// ErrProductNotFound is returned when the product does not exist.
	ErrProductNotFound = errors.New("product not found")
)

const (
	defaultLimit = 10
	maxLimit     = 50
	maxComment   = 2000
)

// Review is one shopper's rating and comment on a product.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is a slice of a product's reviews, newest first.
type Page struct {
	Items []Review
	Total int64
	Page  int
	Limit int
}

// Store persists reviews. Create must reject a second review by the same user with
// ErrAlreadyReviewed and an unknown product with ErrProductNotFound, and must refresh the
// product's rating and review count in the same unit of work.
type Store interface {
	Create(ctx context.Context, review Review) (Review, error)
	List(ctx context.Context, productID string, limit, offset int) ([]Review, int64, error)
}

// ProductInvalidator drops cached product reads once aggregates change.
type ProductInvalidator interface {
	InvalidateProduct(ctx context.Context, productID string) error
}

// Service validates and records reviews.
type Service struct {
	Store  Store
	Cache  ProductInvalidator
	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Create records a review by userID. name is shown next to the review.
func (s *Service) Create(ctx context.Context, userID, name, productID string, rating int, comment string) (Review, error) {
	if s == nil || s.Store == nil {
		return Review{}, errors.New("reviews service not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Review{}, ErrProductNotFound
	}
	if rating < 1 || rating > 5 {
		return Review{}, ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return Review{}, ErrCommentRequired
	}
	if runes := []rune(comment); len(runes) > maxComment {
		comment = string(runes[:maxComment])
	}
	review, err := s.Store.Create(ctx, Review{
		ID:        s.newID(),
		ProductID: productID,
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Rating:    rating,
		Comment:   comment,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return Review{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.InvalidateProduct(ctx, productID); err != nil {
			s.Logger.Warn().Err(err).Str("product_id", productID).Msg("review_cache_invalidate_failed")
		}
	}
	s.Logger.Info().Str("product_id", productID).Str("user_id", userID).Int("rating", rating).Msg("review_created")
	return review, nil
}

// List returns a page of reviews. Non-positive page and limit fall back to 1 and 10.
func (s *Service) List(ctx context.Context, productID string, page, limit int) (Page, error) {
	if s == nil || s.Store == nil {
		return Page{}, errors.New("reviews service not configured")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	items, total, err := s.Store.List(ctx, strings.TrimSpace(productID), limit, (page-1)*limit)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Review{}
	}
	return Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
