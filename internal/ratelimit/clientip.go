package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the originating client address from a request.
//
// Behind a load balancer the peer address is the balancer's, so the first
// entry of X-Forwarded-For is preferred when present. Falls back to the
// connection's remote address with the port stripped.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := fwd
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			first = fwd[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
