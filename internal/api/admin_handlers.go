package api

import (
	"net/http"
	"strings"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/middleware"
)

// ResetRateLimitRequest represents the admin rate limit reset body
type ResetRateLimitRequest struct {
	Key string `json:"key"`
}

// NewResetRateLimitHandler clears the counter for one limiter key, e.g.
// "login:203.0.113.9". Must run behind RequireAuth and RequireRole(admin).
func NewResetRateLimitHandler(rl auth.RateLimiter, audit auth.AuditLogger, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetRateLimitRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		key := strings.TrimSpace(req.Key)
		if key == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "key is required",
			})
			return
		}

		if err := rl.Reset(r.Context(), key); err != nil {
			writeError(w, r, log, opRateLimitReset, oops.Code("RATE_LIMIT_RESET_FAILED").With("key", key).Wrap(err))
			return
		}

		entry := &auth.AuditLog{
			EventType: auth.AuditRateLimitReset,
			ActorType: auth.ActorTypeUser,
			Details:   map[string]any{"key": key},
		}
		if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
			entry.ActorID = claims.UserID
		}
		if err := audit.Log(r.Context(), entry); err != nil {
			log.WithError(err).Warn("failed to write audit log")
		}

		writeSuccess(w, opRateLimitReset, http.StatusOK, map[string]string{
			"message": "Rate limit reset",
			"key":     key,
		})
	}
}
