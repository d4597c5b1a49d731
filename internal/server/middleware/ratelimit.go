package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/rolekeeper/rolekeeper/internal/model"
)

// RateLimit returns an HTTP middleware that limits requests per client IP
// to requestsPerMinute over a sliding window. Rejected requests get the
// standard JSON error envelope.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(model.ErrorResponse{
				Error: model.ErrorDetail{
					Code:    http.StatusTooManyRequests,
					Message: "Rate limit exceeded, retry later",
					Context: map[string]interface{}{"limit_per_minute": requestsPerMinute},
				},
			})
		}),
	)
}
