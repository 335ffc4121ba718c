package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const APIKeyHeader = "X-API-Key"

// APIKey rejects requests under any of the protected path prefixes that
// do not carry key in the X-API-Key header.
func APIKey(key string, protected ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasPrefix(r.URL.Path, protected) {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(APIKeyHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("WWW-Authenticate", "ApiKey")
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RateLimiter allows a fixed number of requests per client IP per window.
type RateLimiter struct {
	limit  int
	window time.Duration
	hits   *cache.Cache
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   cache.New(window, 2*window),
	}
}

// Allow counts one request for client and reports whether it is within
// the limit.
func (l *RateLimiter) Allow(client string) bool {
	if err := l.hits.Add(client, 1, l.window); err == nil {
		return true
	}
	n, err := l.hits.IncrementInt(client, 1)
	if err != nil {
		// expired between Add and IncrementInt
		l.hits.Set(client, 1, l.window)
		return true
	}
	return n <= l.limit
}

// Handler returns 429 once a client exceeds the limit.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			slog.Warn("rate limit exceeded", "client", ip)
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			writeError(w, http.StatusTooManyRequests,
				fmt.Sprintf("rate limit exceeded: %d requests per %s", l.limit, l.window))
			return
		}
		next.ServeHTTP(w, r)
	})
}
