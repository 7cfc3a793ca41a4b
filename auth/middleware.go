package auth

import (
	"errors"
	"net/http"

	"github.com/parkerroan/authgate"
	"golang.org/x/exp/slog"
)

const (
	CodeUnauthorized       = "E401"
	MessageUnauthorized    = "Authentication token is no longer valid."
	CodeUnavailable        = "E503"
	MessageUnavailable     = "Service temporarily unavailable. Please try again later."
	DefaultAccessJTIHeader = "X-Access-Jti"
)

// HeaderJTI reads the verified access token id from header.
func HeaderJTI(header string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// RequireLiveToken rejects requests whose access token was revoked.
// Requests without an access token pass through untouched.
func RequireLiveToken(svc *Service, jtiFunc func(r *http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jti := jtiFunc(r)
			if jti == "" {
				next.ServeHTTP(w, r)
				return
			}

			err := svc.Authorize(r.Context(), jti)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrRevoked):
				authgate.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, MessageUnauthorized)
			default:
				slog.Error("revocation check failed",
					slog.String("trace_id", authgate.TraceID(r.Context())),
					slog.Any("error", err),
				)
				authgate.WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, MessageUnavailable)
			}
		})
	}
}
