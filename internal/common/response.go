package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the "error" member of every failure response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v as the response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders {"error":{"code","message","details"}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]ErrorBody{
		"error": {Code: code, Message: message, Details: details},
	})
}

// DecodeJSON reads the request body into dst. On malformed input it answers 400 BAD_REQUEST,
// or 413 when the body limit cut the read short, and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "request body required", nil)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
			return false
		}
		JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return false
	}
	return true
}
