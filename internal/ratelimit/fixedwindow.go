package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRedisStore builds the fixed-window counter store shared by API replicas.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit:fixed"
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return store, nil
}

// PerMinute returns a fixed-window limiter allowing n events per minute.
func PerMinute(store limiter.Store, n int64) *limiter.Limiter {
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: n})
}

// FixedWindow wraps a handler with an ulule limiter keyed by key. Store failures let the
// request through and are reported to onError.
func FixedWindow(l *limiter.Limiter, key func(*http.Request) string, onError func(error)) func(http.Handler) http.Handler {
	if key == nil {
		key = ByClientIP
	}
	return func(next http.Handler) http.Handler {
		mw := stdlib.NewMiddleware(l,
			stdlib.WithKeyGetter(key),
			stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
				tooManyRequests(w)
			}),
			stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				if onError != nil {
					onError(err)
				}
				next.ServeHTTP(w, r)
			}),
		)
		return mw.Handler(next)
	}
}
