package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Handler wires the cart service to HTTP. Routes must be mounted behind Service.Middleware.
type Handler struct {
	Svc      *Service
	Currency string
}

// ItemView renders a line item with two-decimal money strings.
type ItemView struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	Image        string `json:"image"`
	Brand        string `json:"brand"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int    `json:"quantity"`
	CountInStock int    `json:"countInStock"`
	LineTotal    string `json:"lineTotal"`
}

// TotalsView renders a pricing summary with two-decimal money strings.
type TotalsView struct {
	ItemCount             int    `json:"itemCount"`
	Subtotal              string `json:"subtotal"`
	Shipping              string `json:"shipping"`
	Tax                   string `json:"tax"`
	Total                 string `json:"total"`
	FreeShippingRemaining string `json:"freeShippingRemaining"`
	Currency              string `json:"currency"`
}

// NewItemViews formats line items for API responses. The result is never nil.
func NewItemViews(items []LineItem) []ItemView {
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		views = append(views, ItemView{
			ProductID:    it.ProductID,
			Name:         it.Name,
			Image:        it.Image,
			Brand:        it.Brand,
			UnitPrice:    pricing.Format(it.UnitPrice),
			Quantity:     it.Quantity,
			CountInStock: it.CountInStock,
			LineTotal:    pricing.Format(pricing.LineTotal(pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice})),
		})
	}
	return views
}

// NewTotalsView formats totals for API responses.
func NewTotalsView(t Totals, currency string) TotalsView {
	return TotalsView{
		ItemCount:             t.ItemCount,
		Subtotal:              pricing.Format(t.Subtotal),
		Shipping:              pricing.Format(t.Shipping),
		Tax:                   pricing.Format(t.Tax),
		Total:                 pricing.Format(t.Total),
		FreeShippingRemaining: pricing.Format(t.FreeShippingRemaining),
		Currency:              currency,
	}
}

// Get returns the cart contents and totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, store)
}

// AddItem adds a product or replaces the quantity of an existing line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID string `json:"productId"`
		Qty       int    `json:"qty"`
	}
	if !common.DecodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.ProductID) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "productId is required", map[string]string{"productId": "required"})
		return
	}
	if err := h.Svc.AddItem(r.Context(), store, payload.ProductID, payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, http.StatusOK, store)
}

// UpdateItem changes the quantity of an existing line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload struct {
		Qty int `json:"qty"`
	}
	if !common.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.Svc.UpdateItem(r.Context(), store, chi.URLParam(r, "productId"), payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, http.StatusOK, store)
}

// RemoveItem drops a line. Unknown products are ignored.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	h.Svc.RemoveItem(store, chi.URLParam(r, "productId"))
	h.render(w, http.StatusOK, store)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	h.Svc.Clear(store)
	h.render(w, http.StatusOK, store)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return nil, false
	}
	store, ok := FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart not loaded", nil)
		return nil, false
	}
	return store, true
}

func (h *Handler) render(w http.ResponseWriter, status int, store *Store) {
	common.JSON(w, status, map[string]any{
		"data": map[string]any{
			"items":  NewItemViews(store.Items()),
			"totals": NewTotalsView(h.Svc.Totals(store), h.Currency),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", "product out of stock", nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update cart", nil)
	}
}
