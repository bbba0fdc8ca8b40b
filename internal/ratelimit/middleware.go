package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// KeyFunc derives the client identity from a request (usually the client IP).
type KeyFunc func(*http.Request) string

// Middleware rejects requests over the limit with 429. When the counter store fails the
// request is let through and the failure logged.
func Middleware(l *Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := "ip:" + key(r)
			d, err := l.Allow(r.Context(), clientID)
			if err != nil {
				logger.Warn("rate limiter unavailable, failing open", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests, try again later"})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(d.Reset.Seconds())))
			next.ServeHTTP(w, r)
		})
	}
}
