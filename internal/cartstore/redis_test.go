package cartstore_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/cartstore"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleState() cart.State {
	return cart.State{
		Items: []cart.LineItem{
			{ProductID: "a", Name: "Airpods", UnitPrice: decimal.RequireFromString("20.00"), Quantity: 2, CountInStock: 5},
			{ProductID: "b", Name: "Kindle", UnitPrice: decimal.RequireFromString("15.00"), Quantity: 1, CountInStock: 3},
		},
		ShippingAddress: &cart.ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "PayPal",
	}
}

func TestRedisRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	store := cartstore.NewRedis(client, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(ctx, "sess-1", sampleState()))
	require.True(t, mr.Exists("cart:sess-1"))
	require.Equal(t, time.Hour, mr.TTL("cart:sess-1"))

	loaded, ok, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Items, 2)
	require.Equal(t, "a", loaded.Items[0].ProductID)
	require.Equal(t, "b", loaded.Items[1].ProductID)
	require.True(t, loaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("20")))
	require.Equal(t, "Springfield", loaded.ShippingAddress.City)
	require.Equal(t, "PayPal", loaded.PaymentMethod)
}

func TestRedisRefusesStaleSnapshot(t *testing.T) {
	mr, client := newRedis(t)
	store := cartstore.NewRedis(client, 0)
	ctx := context.Background()

	newer := sampleState()
	newer.Version = 3
	require.NoError(t, store.Save(ctx, "sess-v", newer))
	require.Zero(t, mr.TTL("cart:sess-v"))

	older := sampleState()
	older.Items = nil
	older.Version = 2
	require.ErrorIs(t, store.Save(ctx, "sess-v", older), cart.ErrStaleState)
	older.Version = 3
	require.ErrorIs(t, store.Save(ctx, "sess-v", older), cart.ErrStaleState)

	loaded, ok, err := store.Load(ctx, "sess-v")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Items, 2)
	require.Equal(t, int64(3), loaded.Version)

	older.Version = 4
	require.NoError(t, store.Save(ctx, "sess-v", older))
	loaded, _, err = store.Load(ctx, "sess-v")
	require.NoError(t, err)
	require.Empty(t, loaded.Items)
}

func TestRedisOverwritesCorruptPayloadOnSave(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("cart:sess-c", "{not json"))
	store := cartstore.NewRedis(client, 0)
	require.NoError(t, store.Save(context.Background(), "sess-c", sampleState()))
	loaded, ok, err := store.Load(context.Background(), "sess-c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Items, 2)
}

func TestRedisCorruptPayload(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("cart:sess-2", "{not json"))
	_, ok, err := cartstore.NewRedis(client, 0).Load(context.Background(), "sess-2")
	require.Error(t, err)
	require.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	err := cartstore.NewRedis(client, time.Minute).Save(context.Background(), "sess-3", sampleState())
	require.Error(t, err)
}

func TestMemoryIsolatesSnapshots(t *testing.T) {
	mem := cartstore.NewMemory()
	ctx := context.Background()
	state := sampleState()
	require.NoError(t, mem.Save(ctx, "s", state))
	state.Items[0].Quantity = 99

	loaded, ok, err := mem.Load(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, loaded.Items[0].Quantity)
}

func TestMemoryRefusesStaleSnapshot(t *testing.T) {
	mem := cartstore.NewMemory()
	ctx := context.Background()
	state := sampleState()
	state.Version = 1
	require.NoError(t, mem.Save(ctx, "s", state))

	stale := cart.State{Version: 1}
	require.ErrorIs(t, mem.Save(ctx, "s", stale), cart.ErrStaleState)
	loaded, _, err := mem.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)

	stale.Version = 2
	require.NoError(t, mem.Save(ctx, "s", stale))
	loaded, _, err = mem.Load(ctx, "s")
	require.NoError(t, err)
	require.Empty(t, loaded.Items)
}
