package favorites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/catalog"
)

// ErrNotFound is returned when favoriting a product the catalog does not know.
var ErrNotFound = errors.New("product not found")

// Service keeps a per-session favorites list in a Redis sorted set scored by the time added.
type Service struct {
	Client  redis.Cmdable
	Catalog catalog.Source
	TTL     time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s *Service) key(sessionID string) string {
	return "favorites:" + sessionID
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Add favorites a product. Adding twice keeps the original position.
func (s *Service) Add(ctx context.Context, sessionID, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrNotFound
	}
	if _, err := s.Catalog.Product(ctx, productID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("catalog lookup: %w", err)
	}
	key := s.key(sessionID)
	pipe := s.Client.TxPipeline()
	pipe.ZAddNX(ctx, key, redis.Z{Score: float64(s.now().UnixNano()), Member: productID})
	if s.TTL > 0 {
		pipe.Expire(ctx, key, s.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// Remove drops a product from favorites. Unknown ids are ignored.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) error {
	if err := s.Client.ZRem(ctx, s.key(sessionID), strings.TrimSpace(productID)).Err(); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// IDs returns favorite product ids, oldest first.
func (s *Service) IDs(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.Client.ZRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return ids, nil
}

// List resolves favorites through the catalog. Products that disappeared are skipped.
func (s *Service) List(ctx context.Context, sessionID string) ([]catalog.Product, error) {
	ids, err := s.IDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.Catalog.Product(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				s.Logger.Debug().Str("product_id", id).Msg("favorite_product_missing")
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Count returns the number of favorites.
func (s *Service) Count(ctx context.Context, sessionID string) (int64, error) {
	return s.Client.ZCard(ctx, s.key(sessionID)).Result()
}
