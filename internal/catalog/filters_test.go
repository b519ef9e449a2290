package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/catalog"
)

var shelfNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func shelfSource() *catalog.MemorySource {
	day := 24 * time.Hour
	return catalog.NewMemorySource(
		catalog.Product{ID: "p-1", Name: "Airpods Pro", Brand: "Apple", CategoryID: "c-audio", Price: decimal.RequireFromString("249.00"),
			CountInStock: 5, Rating: 4.5, NumReviews: 12, CreatedAt: shelfNow.Add(-90 * day)},
		catalog.Product{ID: "p-2", Name: "Kindle", Brand: "Amazon", CategoryID: "c-books", Price: decimal.RequireFromString("99.99"),
			CountInStock: 3, Rating: 4.8, NumReviews: 10, CreatedAt: shelfNow.Add(-5 * day)},
		catalog.Product{ID: "p-3", Name: "WH-1000XM5", Brand: "Sony", CategoryID: "c-audio", Price: decimal.RequireFromString("399.00"),
			CountInStock: 2, Rating: 3.9, NumReviews: 40, CreatedAt: shelfNow.Add(-10 * day)},
		catalog.Product{ID: "p-4", Name: "HomePod mini", Brand: "apple", CategoryID: "c-audio", Price: decimal.RequireFromString("99.00"),
			CountInStock: 0, Rating: 4.0, NumReviews: 11, CreatedAt: shelfNow.Add(-40 * day)},
		catalog.Product{ID: "p-5", Name: "Gift card", Brand: "Store", Price: decimal.RequireFromString("25.00"), CountInStock: 100},
	)
}

func listIDs(t *testing.T, query string) []string {
	t.Helper()
	handler := &catalog.Handler{Source: shelfSource(), Now: func() time.Time { return shelfNow }}
	rec := httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?"+query, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	ids := make([]string, 0, len(resp.Data))
	for _, p := range resp.Data {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestProductFilters(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"newest first", "", []string{"p-2", "p-3", "p-4", "p-1", "p-5"}},
		{"top rated", "topRated=true", []string{"p-4", "p-1"}},
		{"new arrivals", "new=1", []string{"p-2", "p-3"}},
		{"top rated new arrivals", "topRated=true&new=true", []string{}},
		{"categories comma separated", "category=c-books,c-audio", []string{"p-2", "p-3", "p-4", "p-1"}},
		{"categories repeated", "category=c-books&category=c-missing", []string{"p-2"}},
		{"brand ignores case", "brand=APPLE", []string{"p-4", "p-1"}},
		{"brands", "brand=sony,amazon", []string{"p-2", "p-3"}},
		{"price range inclusive", "minPrice=99&maxPrice=249", []string{"p-2", "p-4", "p-1"}},
		{"min price", "minPrice=300", []string{"p-3"}},
		{"combined", "category=c-audio&brand=apple&maxPrice=100", []string{"p-4"}},
		{"keyword", "keyword=pod", []string{"p-4", "p-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, listIDs(t, tc.query))
		})
	}
}

func TestProductFiltersRejectBadPrices(t *testing.T) {
	handler := &catalog.Handler{Source: shelfSource()}
	for _, query := range []string{"minPrice=abc", "maxPrice=-1", "minPrice=10&maxPrice=5"} {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		require.Contains(t, rec.Body.String(), "INVALID_FILTER")
	}
}

func TestRelatedProducts(t *testing.T) {
	src := shelfSource()
	related, err := catalog.Related(context.Background(), src, "p-1", 0)
	require.NoError(t, err)
	require.Len(t, related, 2)
	require.Equal(t, "p-3", related[0].ID)
	require.Equal(t, "p-4", related[1].ID)

	related, err = catalog.Related(context.Background(), src, "p-1", 1)
	require.NoError(t, err)
	require.Len(t, related, 1)

	related, err = catalog.Related(context.Background(), src, "p-5", 0)
	require.NoError(t, err)
	require.Empty(t, related)

	_, err = catalog.Related(context.Background(), src, "missing", 0)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRelatedHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/products/{id}/related", (&catalog.Handler{Source: shelfSource()}).Related)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/p-2/related", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/nope/related", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
