package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryWithLock when another holder owns the key.
var ErrLocked = errors.New("lock: already held")

const defaultTTL = 30 * time.Second

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R      *redis.Client
	Prefix string
}

func (l Locker) key(k string) string {
	return l.Prefix + k
}

// TryWithLock runs fn only if the lock is free right now; otherwise it returns ErrLocked
// without waiting.
func (l Locker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if err := l.check(fn); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	defer l.release(context.Background(), l.key(key), token)
	return fn(ctx)
}

func (l Locker) check(fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	return nil
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
