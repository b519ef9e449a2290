package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler proxies order confirmation and history views. Mount behind auth.RequireAuth.
type Handler struct {
	Orders Reader
}

// Get returns one order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order client not configured", nil)
		return
	}
	raw, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": raw})
}

// Mine lists the caller's orders.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order client not configured", nil)
		return
	}
	raw, err := h.Orders.Mine(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": raw})
}

// WriteError renders an order API failure with a shopper-facing message.
func WriteError(w http.ResponseWriter, err error) {
	var se *SubmitError
	if !errors.As(err, &se) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error placing order", nil)
		return
	}
	details := map[string]any{"kind": se.Kind, "retryable": se.Retryable()}
	switch se.Kind {
	case KindValidation:
		common.JSONError(w, http.StatusUnprocessableEntity, "ORDER_REJECTED", messageOr(se, "order is invalid"), details)
	case KindStockConflict:
		common.JSONError(w, http.StatusConflict, "STOCK_CONFLICT", messageOr(se, "some items are no longer available in the requested quantity"), details)
	case KindPaymentFailed:
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_FAILED", messageOr(se, "payment was declined"), details)
	case KindNotFound:
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case KindUnauthorized:
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	case KindTransient:
		common.JSONError(w, http.StatusServiceUnavailable, "ORDER_SERVICE_UNAVAILABLE", "order service unavailable, please retry", details)
	default:
		common.JSONError(w, http.StatusBadGateway, "ORDER_FAILED", "error placing order", details)
	}
}

func messageOr(se *SubmitError, fallback string) string {
	if se.Message != "" {
		return se.Message
	}
	return fallback
}
