package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires shopper identity into HTTP handlers. Browsing and the cart stay anonymous;
// only routes wrapped with RequireAuth need a token.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
}

// Authenticate attaches the shopper identity when a valid token is present and passes the
// request through untouched otherwise.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if common.WriteAppError(w, err, http.StatusUnauthorized) {
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	if m.Verifier == nil {
		return r.Context(), errors.New("auth: verifier not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	claims, err := m.Verifier.Parse(token)
	if err != nil {
		return r.Context(), err
	}
	ctx := common.WithUserID(r.Context(), claims.UserID)
	ctx = common.WithAccessToken(ctx, token)
	if claims.Email != "" {
		ctx = common.WithUserEmail(ctx, claims.Email)
	}
	if claims.Name != "" {
		ctx = common.WithUserName(ctx, claims.Name)
	}
	return ctx, nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}
