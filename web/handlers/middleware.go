// Package handlers provides the JSON HTTP handlers, middleware and websocket
// event feed of the questionmatch service.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/questionmatch/internal/config"
)

// HealthPath is served without a token so load balancers can probe it.
const HealthPath = "/api/health"

// RequireAuth checks the bearer token when the service runs in production
// mode. Development mode and HealthPath pass through untouched.
func RequireAuth(next http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.Security.SecurityMode == "development" || r.URL.Path == HealthPath {
			next.ServeHTTP(w, r)
			return
		}

		expected := cfg.Security.APIToken
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if expected == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="questionmatch"`)
			respondError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiter is one token bucket shared by every client.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows reqPerSec sustained requests with bursts of up to
// burst. A rate of zero or less disables limiting.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	if reqPerSec <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(reqPerSec), max(burst, 1))}
}

// retryAfter is the whole number of seconds until one more token is free.
func (rl *RateLimiter) retryAfter() int {
	r := rl.limiter.Reserve()
	defer r.Cancel()
	return max(int((r.Delay()+time.Second-1)/time.Second), 1)
}

// RateLimitMiddleware answers 429 with a Retry-After hint once the bucket
// is empty.
func RateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
