package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
)

func status(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestBodyLimit(t *testing.T) {
	decode := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if common.DecodeJSON(w, r, &body) {
			common.JSON(w, http.StatusOK, body)
		}
	})

	t.Run("within limit", func(t *testing.T) {
		var captured string
		handler := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			captured = string(data)
			w.WriteHeader(http.StatusOK)
		}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("hello")))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "hello", captured)
	})

	t.Run("declared content length", func(t *testing.T) {
		rr := httptest.NewRecorder()
		BodyLimit{Max: 5}.Middleware(status(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("excessive")))
		require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
	})

	t.Run("streamed body cut off", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":"p-1000000"}`))
		req.ContentLength = -1
		rr := httptest.NewRecorder()
		BodyLimit{Max: 8}.Middleware(decode).ServeHTTP(rr, req)
		require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
	})

	t.Run("disabled", func(t *testing.T) {
		rr := httptest.NewRecorder()
		BodyLimit{}.Middleware(decode).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"b"}`)))
		require.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestHeadersMiddleware(t *testing.T) {
	handler := Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}.Middleware(status(http.StatusOK))
	req := httptest.NewRequest(http.MethodGet, "https://shop.example.com/api/v1/cart", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"), "no HSTS over plain HTTP")

	rr = httptest.NewRecorder()
	Headers{Enable: false}.Middleware(status(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}

func TestCSRF(t *testing.T) {
	csrf := CSRF{Header: "X-CSRF-Token", SessionCookie: "cart_session"}
	handler := csrf.Middleware(status(http.StatusOK))

	t.Run("issues token on safe request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "X-CSRF-Token", cookies[0].Name)
		require.NotEmpty(t, cookies[0].Value)
	})

	t.Run("blocks cookie session without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: "s-1"})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("rejects mismatched token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: "s-1"})
		req.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "aaaa"})
		req.Header.Set("X-CSRF-Token", "bbbb")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code)
		require.Contains(t, rr.Body.String(), "CSRF_INVALID")
	})

	t.Run("accepts matching token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: "s-1"})
		req.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "secure-token"})
		req.Header.Set("X-CSRF-Token", "secure-token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("header sessions and bearer callers skip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.Header.Set("X-Session-ID", "s-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout/place-order", nil)
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: "s-1"})
		req.Header.Set("Authorization", "Bearer abc.def")
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})
}
