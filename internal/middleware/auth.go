package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

type contextKey int

const (
	claimsKey contextKey = iota
	requestIDKey
)

// WithClaims attaches verified access token claims to ctx
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims set by RequireAuth
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// RequireAuth is middleware that validates bearer access tokens and attaches the claims to context
func RequireAuth(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Missing or invalid authorization header",
				})
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := tokens.ParseAccessToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Invalid or expired token",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

var roleHierarchy = map[auth.Role]int{
	auth.RoleCustomer: 1,
	auth.RoleAdmin:    2,
}

// RequireRole is middleware that checks if the caller has at least minRole
func RequireRole(minRole auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Authentication required",
				})
				return
			}

			userLevel, userExists := roleHierarchy[claims.Role]
			minLevel, minExists := roleHierarchy[minRole]

			if !userExists || !minExists || userLevel < minLevel {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error": "Insufficient permissions",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
