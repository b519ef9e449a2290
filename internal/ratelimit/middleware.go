// Package ratelimit throttles cart writes and order placement.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/storefront/internal/common"
)

// Config picks the key and the budget of a sliding window limit. Requests whose key is empty are
// not limited.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler applies a sliding window Limiter. When Redis is unreachable the request goes through
// and the error is passed to OnError.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		if h.Config.Key != nil {
			key = h.Config.Key(r)
		}
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		setHeaders(w.Header(), max(h.Config.Max, 0), remaining, resetAt)
		if !allowed {
			retry := max(int(time.Until(resetAt).Seconds()), 0)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			tooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setHeaders(h http.Header, limit, remaining int, reset time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

func tooManyRequests(w http.ResponseWriter) {
	common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

// BySession keys on the shopper session, or the client IP before one exists.
func BySession(r *http.Request) string {
	if id, ok := common.SessionID(r.Context()); ok {
		return "session:" + id
	}
	return ByClientIP(r)
}

// ByClientIP keys on the caller's address.
func ByClientIP(r *http.Request) string {
	if ip := common.ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}
