// Package session identifies anonymous shoppers so each one owns exactly one cart.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront/internal/common"
)

// HeaderName carries the session id for clients that do not keep cookies.
const HeaderName = "X-Session-ID"

// Options configures the session cookie.
type Options struct {
	CookieName string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
	TTL        time.Duration
}

// Middleware resolves the shopper session from the cookie or the X-Session-ID header, minting a
// new id when neither carries a valid one. The cookie is refreshed on every request.
func Middleware(opts Options) func(http.Handler) http.Handler {
	name := strings.TrimSpace(opts.CookieName)
	if name == "" {
		name = "cart_session"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	sameSite := opts.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := fromRequest(r, name)
			if id == "" {
				id = uuid.NewString()
			}
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    id,
				Path:     "/",
				Domain:   opts.Domain,
				MaxAge:   int(ttl / time.Second),
				Expires:  time.Now().Add(ttl),
				Secure:   opts.Secure,
				HttpOnly: true,
				SameSite: sameSite,
			})
			w.Header().Set(HeaderName, id)
			next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id)))
		})
	}
}

func fromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if id, ok := normalize(cookie.Value); ok {
			return id
		}
	}
	if id, ok := normalize(r.Header.Get(HeaderName)); ok {
		return id
	}
	return ""
}

func normalize(raw string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || parsed == uuid.Nil {
		return "", false
	}
	return parsed.String(), true
}
