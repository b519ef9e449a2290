package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes read-only catalog endpoints for the shop pages.
type Handler struct {
	Source Source
	// Now anchors the new-arrivals window; defaults to time.Now.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Products handles GET /products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	params, err := parseListParams(r.URL.Query(), h.now())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), nil)
		return
	}
	params.Page, params.Limit = common.ParsePagination(r, defaultLimit)
	result, err := h.Source.List(r.Context(), params)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list products", nil)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": result.Items,
		"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
	})
}

// ProductDetail handles GET /products/{id}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	product, err := h.Source.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load product", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Related handles GET /products/{id}/related.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	products, err := Related(r.Context(), h.Source, chi.URLParam(r, "id"), limit)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load related products", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

// Categories handles GET /categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	categories, err := h.Source.Categories(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list categories", nil)
		return
	}
	if categories == nil {
		categories = []Category{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": categories})
}

// parseListParams reads keyword, category, brand, minPrice, maxPrice, topRated and new.
// category and brand accept repeated or comma separated values.
func parseListParams(q url.Values, now time.Time) (ListParams, error) {
	params := ListParams{
		Keyword:    q.Get("keyword"),
		Categories: multiValue(q, "category"),
		Brands:     multiValue(q, "brand"),
	}
	var err error
	if params.MinPrice, err = priceParam(q, "minPrice"); err != nil {
		return ListParams{}, err
	}
	if params.MaxPrice, err = priceParam(q, "maxPrice"); err != nil {
		return ListParams{}, err
	}
	if params.MinPrice != nil && params.MaxPrice != nil && params.MinPrice.GreaterThan(*params.MaxPrice) {
		return ListParams{}, errors.New("minPrice must not exceed maxPrice")
	}
	if flag(q, "topRated") {
		params = params.TopRated()
	}
	if flag(q, "new") {
		params = params.NewArrivals(now)
	}
	return params, nil
}

func multiValue(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func priceParam(q url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		return nil, fmt.Errorf("%s must be a non-negative amount", key)
	}
	return &v, nil
}

func flag(q url.Values, key string) bool {
	v, _ := strconv.ParseBool(q.Get(key))
	return v
}
