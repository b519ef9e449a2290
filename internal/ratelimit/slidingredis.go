package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims expired hits, records the new one only when there is room and returns
// {allowed, count, oldest score}. Scores are unix microseconds and travel as strings so Lua
// never formats them.
var slidingWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {allowed, count, oldest[2] or ARGV[2]}
`)

// Limiter is a sliding-window rate limiter over a Redis sorted set per key. Denied hits are not
// recorded, so a client hammering the limit does not push its own window forward.
type Limiter struct {
	Client redis.Scripter
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records a hit for key and reports whether it fits in max per window. reset is when the
// oldest hit in the window ages out. A zero max or window disables the limiter.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	score := now.UnixMicro()
	args := []any{
		strconv.FormatInt(score-window.Microseconds(), 10),
		strconv.FormatInt(score, 10),
		max,
		uuid.NewString(),
		max64(window.Milliseconds(), 1),
	}
	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key}, args...).Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	count, _ := res[1].(int64)
	oldest := score
	if f, perr := strconv.ParseFloat(fmt.Sprint(res[2]), 64); perr == nil {
		oldest = int64(f)
	}
	remaining = max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return res[0] == int64(1), remaining, time.UnixMicro(oldest).Add(window), nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
