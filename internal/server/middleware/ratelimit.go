package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/edison/internal/errors"
)

// RateLimit rejects requests with 429 once limiter is exhausted.
// A nil limiter disables limiting.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				apperrors.WriteError(w, r, http.StatusTooManyRequests, apperrors.CodeTooManyRequests,
					"too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
