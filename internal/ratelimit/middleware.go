package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuitang/notefold/internal/obs"
)

// DefaultRetryAfterSeconds is the minimum Retry-After value sent on 429.
const DefaultRetryAfterSeconds = 1

// Middleware enforces limiter per key. Requests with an empty key pass through;
// auth middleware is responsible for rejecting them.
//
// On rejection it writes 429 with Retry-After and X-RateLimit-Remaining: 0.
// A limiter backend error fails open and is logged.
func Middleware(limiter Limiter, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				obs.From(r.Context()).With("pkg", "ratelimit").Warn("ratelimit_backend_error", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				retry := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retry < DefaultRetryAfterSeconds {
					retry = DefaultRetryAfterSeconds
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's client address, preferring the first
// X-Forwarded-For hop when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
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
