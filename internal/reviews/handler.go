package reviews

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes product reviews.
type Handler struct {
	Svc *Service
}

// List handles GET /products/{id}/reviews.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r, defaultLimit)
	result, err := h.Svc.List(r.Context(), chi.URLParam(r, "id"), page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
	})
}

// Create handles POST /products/{id}/reviews. Requires an authenticated shopper.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in to write a review", nil)
		return
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	name, ok := common.UserName(r.Context())
	if !ok {
		name, _ = common.UserEmail(r.Context())
	}
	review, err := h.Svc.Create(r.Context(), userID, name, chi.URLParam(r, "id"), req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": review})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRating):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), map[string]string{"rating": "range"})
	case errors.Is(err, ErrCommentRequired):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), map[string]string{"comment": "required"})
	case errors.Is(err, ErrAlreadyReviewed):
		common.JSONError(w, http.StatusConflict, "ALREADY_REVIEWED", err.Error(), nil)
	case errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process review", nil)
	}
}
