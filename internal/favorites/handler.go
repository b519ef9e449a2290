package favorites

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes the session's favorites.
type Handler struct {
	Svc *Service
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "favorites not configured", nil)
		return "", false
	}
	id, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "NO_SESSION", "session missing", nil)
		return "", false
	}
	return id, true
}

// List returns favorite products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	products, err := h.Svc.List(r.Context(), sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list favorites", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products, "count": len(products)})
}

// Add favorites a product.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID string `json:"productId"`
	}
	if !common.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.Svc.Add(r.Context(), sessionID, payload.ProductID); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to add favorite", nil)
		return
	}
	h.count(w, r, sessionID, http.StatusCreated)
}

// Remove unfavorites a product.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Remove(r.Context(), sessionID, chi.URLParam(r, "productId")); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to remove favorite", nil)
		return
	}
	h.count(w, r, sessionID, http.StatusOK)
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request, sessionID string, status int) {
	n, err := h.Svc.Count(r.Context(), sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to count favorites", nil)
		return
	}
	common.JSON(w, status, map[string]any{"data": map[string]any{"count": n}})
}
