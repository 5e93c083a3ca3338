package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/transfa/finance-service/internal/logger"
)

// RateLimiter counts one hit for a subject within a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// MutationRateLimitMiddleware limits write requests per authenticated owner. Reads
// pass through untouched. Limiter failures let the request through.
func MutationRateLimitMiddleware(limiter RateLimiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 || !isMutation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ownerID, ok := GetOwnerID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "mutations", ownerID, perMinute, time.Minute)
			if err != nil {
				log := logger.FromContext(r.Context())
				log.Warn().Err(err).Str("op", "rate_limit").Msg("rate limiter unavailable; allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if count > perMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
