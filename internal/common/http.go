package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the host part of r.RemoteAddr. Forwarded headers count only through chi's
// RealIP middleware, which rewrites RemoteAddr before this runs.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
