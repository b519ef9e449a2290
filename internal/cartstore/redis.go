package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront/internal/cart"
)

const defaultPrefix = "cart:"

// saveIfNewer writes ARGV[1] unless the stored snapshot carries a version >= ARGV[2].
// Unparseable payloads are overwritten. Returns 1 on write, 0 when stale.
var saveIfNewer = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and type(decoded) == "table" and tonumber(decoded["version"]) ~= nil
    and tonumber(decoded["version"]) >= tonumber(ARGV[2]) then
    return 0
  end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// Redis persists cart snapshots as JSON strings keyed by session id.
type Redis struct {
	Client redis.Cmdable
	Prefix string
	// TTL refreshes on every save; zero keeps snapshots forever.
	TTL time.Duration
}

// NewRedis builds a Redis persister with the default key prefix.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{Client: client, Prefix: defaultPrefix, TTL: ttl}
}

func (r *Redis) key(sessionID string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + strings.TrimSpace(sessionID)
}

// Save writes the full cart state unless a newer version is already stored, in which case it
// returns cart.ErrStaleState.
func (r *Redis) Save(ctx context.Context, sessionID string, state cart.State) error {
	if r == nil || r.Client == nil {
		return errors.New("cartstore: redis client not configured")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	written, err := saveIfNewer.Run(ctx, r.Client, []string{r.key(sessionID)},
		string(payload), state.Version, r.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if written == 0 {
		return cart.ErrStaleState
	}
	return nil
}

// Load returns the stored state. ok is false when nothing has been saved for the session.
// Corrupt payloads are reported as errors so callers can fall back to an empty cart.
func (r *Redis) Load(ctx context.Context, sessionID string) (cart.State, bool, error) {
	if r == nil || r.Client == nil {
		return cart.State{}, false, errors.New("cartstore: redis client not configured")
	}
	raw, err := r.Client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.State{}, false, nil
		}
		return cart.State{}, false, fmt.Errorf("load cart: %w", err)
	}
	var state cart.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return cart.State{}, false, fmt.Errorf("decode cart: %w", err)
	}
	return state, true, nil
}
