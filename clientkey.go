package authgate

import (
	"net"
	"net/http"
	"strings"
)

const unknownClient = "unknown"

// ClientKey identifies the requester: the first hop of X-Forwarded-For when
// trusted and present, else the peer address, else "unknown".
func ClientKey(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(xff) != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return unknownClient
}

// ClientKeyFunc returns a key getter for HTTPMiddleware.
func ClientKeyFunc(trustForwardedFor bool) func(r *http.Request) string {
	return func(r *http.Request) string {
		return ClientKey(r, trustForwardedFor)
	}
}

// MaskClientKey hides most of a client key for logging.
func MaskClientKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "***"
}
