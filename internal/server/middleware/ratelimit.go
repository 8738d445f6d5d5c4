package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// RateLimit returns middleware that caps each client IP at limit requests
// per window. The limiter is Redis-backed, so the cap holds across
// replicas. Limiter failures let traffic through.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), "ratelimit:api:"+clientIP(r), limit, window)
			switch {
			case err != nil:
				next.ServeHTTP(w, r)
			case !ok:
				hdr := w.Header()
				hdr.Set("Content-Type", "application/json; charset=utf-8")
				hdr.Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// clientIP resolves the originating address, trusting the usual proxy
// headers before falling back to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
