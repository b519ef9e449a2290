package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/order"
)

// Handler exposes the checkout steps. Routes must be mounted behind cart.Service.Middleware.
type Handler struct {
	Svc *Service
}

// View reports whether the shopper may open a checkout view.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	view, ok := ParseView(chi.URLParam(r, "view"))
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown checkout view", nil)
		return
	}
	if err := h.Svc.Enter(store, view); err != nil {
		h.writeError(w, err)
		return
	}
	h.renderState(w, store, view)
}

// SaveShipping records the shipping address.
func (h *Handler) SaveShipping(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var addr cart.ShippingAddress
	if !common.DecodeJSON(w, r, &addr) {
		return
	}
	if err := h.Svc.SaveShipping(store, addr); err != nil {
		h.writeError(w, err)
		return
	}
	h.renderState(w, store, ViewPayment)
}

// SavePayment records the payment method.
func (h *Handler) SavePayment(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload struct {
		PaymentMethod string `json:"paymentMethod"`
	}
	if !common.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.Svc.SavePayment(store, payload.PaymentMethod); err != nil {
		h.writeError(w, err)
		return
	}
	h.renderState(w, store, ViewPlaceOrder)
}

// Quote returns the order summary including tax.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"items":  cart.NewItemViews(store.Items()),
			"totals": cart.NewTotalsView(h.Svc.Quote(store), h.Svc.Currency),
		},
	})
}

// PlaceOrder submits the order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	sessionID, _ := common.SessionID(r.Context())
	confirmation, err := h.Svc.PlaceOrder(r.Context(), sessionID, store)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"orderId":  confirmation.OrderID,
			"redirect": confirmation.Redirect,
			"path":     "/order/" + confirmation.OrderID,
			"step":     confirmation.Step,
		},
	})
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return nil, false
	}
	store, ok := cart.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart not loaded", nil)
		return nil, false
	}
	return store, true
}

func (h *Handler) renderState(w http.ResponseWriter, store *cart.Store, view View) {
	state := store.State()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"view":            view,
			"step":            StepOf(state),
			"shippingAddress": state.ShippingAddress,
			"paymentMethod":   state.PaymentMethod,
			"itemCount":       len(state.Items),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var redirect *RedirectError
	var invalid *ValidationError
	var submit *order.SubmitError
	switch {
	case errors.As(err, &redirect):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_REDIRECT", "complete the previous checkout step first", map[string]any{
			"redirect": redirect.To,
			"step":     redirect.Step,
		})
	case errors.As(err, &invalid):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "please fill in all required fields", invalid.Fields)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "your cart is empty", map[string]any{"redirect": ViewCart})
	case errors.Is(err, ErrSubmissionInFlight):
		common.JSONError(w, http.StatusConflict, "SUBMISSION_IN_FLIGHT", "your order is already being placed", nil)
	case errors.Is(err, ErrUnsupportedPaymentMethod):
		common.JSONError(w, http.StatusBadRequest, "UNSUPPORTED_PAYMENT_METHOD", "payment method not supported", nil)
	case errors.As(err, &submit):
		order.WriteError(w, err)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "error placing order", nil)
	}
}
