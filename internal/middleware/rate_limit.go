package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/metrics"
)

// RateLimitPolicy describes one limited endpoint
type RateLimitPolicy struct {
	// Scope prefixes the limiter key, e.g. "login" gives "login:<ip>".
	Scope       string
	MaxAttempts int
	Window      time.Duration
	Message     string
}

// Key returns the limiter key for a client
func (p RateLimitPolicy) Key(clientIP string) string {
	return p.Scope + ":" + clientIP
}

// RateLimit returns middleware that rate limits requests by client IP.
// Returns 429 Too Many Requests with Retry-After header when exceeded.
// Limiter backend errors are logged and the request is let through.
func RateLimit(rl auth.RateLimiter, policy RateLimitPolicy, log logrus.FieldLogger) func(http.Handler) http.Handler {
	message := policy.Message
	if message == "" {
		message = "Too many requests, please try again later"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)

			result, err := rl.Check(r.Context(), policy.Key(ip), policy.MaxAttempts, policy.Window)
			if err != nil {
				metrics.RecordRateLimitError(policy.Scope)
				log.WithError(err).WithFields(logrus.Fields{
					"scope":     policy.Scope,
					"client_ip": ip,
				}).Error("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				metrics.RecordRateLimitDenial(policy.Scope)
				log.WithFields(logrus.Fields{
					"scope":       policy.Scope,
					"client_ip":   ip,
					"method":      r.Method,
					"path":        r.URL.Path,
					"retry_after": result.RetryAfter,
				}).Warn("rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":      message,
					"retryAfter": result.RetryAfter,
				})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For (first IP), X-Real-IP, then RemoteAddr.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}
