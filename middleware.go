package authgate

import (
	"encoding/json"
	"net/http"
	"strconv"

	"golang.org/x/exp/slog"
)

const (
	// CodeTooManyRequests is the error code of a rate limited response.
	CodeTooManyRequests = "E429"
	// MessageTooManyRequests is the message of a rate limited response.
	MessageTooManyRequests = "Too many requests. Please try again later."
)

// ErrorBody is the JSON body of every error this module writes.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPMiddleware creates a new middleware function for rate limiting.
// This function is compatible with both standard net/http and mux handlers.
func HTTPMiddleware(rl *RateLimiter, keyGetter func(r *http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := keyGetter(r) // get the unique identifier for the requester

			decision := rl.Allow(r.Method, r.URL.Path, clientKey)
			if !decision.Allowed {
				h := w.Header()
				h.Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
				h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
				h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests, MessageTooManyRequests)
				return
			}

			// Proceed to the next handler if not rate-limited
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes a JSON error body with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorBody{Code: code, Message: message}); err != nil {
		slog.Error("error writing error response", slog.Any("error", err))
	}
}
