package favorites_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/favorites"
)

func newService(t *testing.T) (*miniredis.Miniredis, *favorites.Service, *catalog.MemorySource) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := catalog.NewMemorySource(
		catalog.Product{ID: "A", Name: "Airpods", Price: decimal.RequireFromString("20"), CountInStock: 5},
		catalog.Product{ID: "B", Name: "Kindle", Price: decimal.RequireFromString("15"), CountInStock: 3},
	)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := &favorites.Service{
		Client:  client,
		Catalog: src,
		TTL:     time.Hour,
		Logger:  zerolog.Nop(),
		Now: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	}
	return mr, svc, src
}

func TestFavoritesLifecycle(t *testing.T) {
	mr, svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "s1", "B"))
	require.NoError(t, svc.Add(ctx, "s1", "A"))
	require.NoError(t, svc.Add(ctx, "s1", "B"))
	require.ErrorIs(t, svc.Add(ctx, "s1", "nope"), favorites.ErrNotFound)

	ids, err := svc.IDs(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, ids)
	require.Equal(t, time.Hour, mr.TTL("favorites:s1"))

	products, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, "Kindle", products[0].Name)

	require.NoError(t, svc.Remove(ctx, "s1", "B"))
	require.NoError(t, svc.Remove(ctx, "s1", "missing"))
	n, err := svc.Count(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	other, err := svc.IDs(ctx, "s2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestFavoritesSkipsVanishedProducts(t *testing.T) {
	mr, svc, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, "s", "A"))
	_, err := mr.ZAdd("favorites:s", 1, "gone")
	require.NoError(t, err)

	products, err := svc.List(ctx, "s")
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestFavoritesHandlers(t *testing.T) {
	_, svc, _ := newService(t)
	h := &favorites.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithSessionID(req.Context(), "sess")))
		})
	})
	r.Get("/favorites", h.List)
	r.Post("/favorites", h.Add)
	r.Delete("/favorites/{productId}", h.Remove)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/favorites", strings.NewReader(`{"productId":"A"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"data":{"count":1}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/favorites", strings.NewReader(`{"productId":"X"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favorites", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []catalog.Product `json:"data"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "A", list.Data[0].ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/favorites/A", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"count":0}}`, rec.Body.String())
}
