package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/obs"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper. A nil client or non-positive TTL disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "catalog:"}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// Delete drops a cached key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled() || key == "" {
		return nil
	}
	return c.client.Del(ctx, c.prefix+key).Err()
}

// CachedSource serves product and category lookups from Redis before hitting the underlying source.
// Listings are not cached since their filters fan out.
type CachedSource struct {
	Source Source
	Cache  *Cache
	Logger zerolog.Logger
}

// Product implements Source.
func (s CachedSource) Product(ctx context.Context, id string) (Product, error) {
	key := "product:" + id
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_get_failed")
	} else if ok {
		obs.CountCatalogCache("hit")
		return cached, nil
	}
	obs.CountCatalogCache("miss")
	product, err := s.Source.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := s.Cache.SetJSON(ctx, key, product); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_set_failed")
	}
	return product, nil
}

// InvalidateProduct drops the cached read of a product whose aggregates changed.
func (s CachedSource) InvalidateProduct(ctx context.Context, id string) error {
	return s.Cache.Delete(ctx, "product:"+id)
}

// List implements Source.
func (s CachedSource) List(ctx context.Context, params ListParams) (ListResult, error) {
	return s.Source.List(ctx, params)
}

// Categories implements Source.
func (s CachedSource) Categories(ctx context.Context) ([]Category, error) {
	const key = "categories"
	var cached []Category
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		obs.CountCatalogCache("hit")
		return cached, nil
	}
	obs.CountCatalogCache("miss")
	categories, err := s.Source.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, key, categories); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_set_failed")
	}
	return categories, nil
}
