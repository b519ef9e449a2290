package security

import (
	"net/http"
	"strconv"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Headers sets hardening headers on every response. Cart and checkout payloads are per-shopper,
// so nothing is cacheable. HSTS is only sent over TLS.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	static := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cache-Control", "no-store"},
	}
	hsts := h.hstsValue()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		for _, kv := range static {
			header.Set(kv[0], kv[1])
		}
		if hsts != "" && r.TLS != nil {
			header.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.EnableHSTS {
		return ""
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	v := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}
