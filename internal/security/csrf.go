package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront/internal/common"
)

// CSRF protects the cookie-based cart session using the double-submit technique. Requests that
// do not carry the session cookie, or that authenticate with a bearer token, are not exposed to
// cross-site forgery and pass through.
type CSRF struct {
	Header        string
	SessionCookie string
	Secure        bool
	Domain        string
}

// Middleware issues the token cookie on safe requests and enforces the header/cookie match on
// state-changing ones.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			if _, err := r.Cookie(headerName); err != nil {
				http.SetCookie(w, &http.Cookie{
					Name:     headerName,
					Value:    uuid.NewString(),
					Path:     "/",
					Domain:   c.Domain,
					Secure:   c.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r)
			return
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		if c.SessionCookie != "" {
			if _, err := r.Cookie(c.SessionCookie); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_MISSING", "missing csrf token", nil)
			return
		}
		cookie, err := r.Cookie(headerName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_MISSING", "missing csrf cookie", nil)
			return
		}
		if subtleConstantTimeCompare(token, cookie.Value) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func subtleConstantTimeCompare(a, b string) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b))
}
