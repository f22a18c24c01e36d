package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/metrics"
	"github.com/mark-chris/storefront-auth/internal/middleware"
)

// DefaultMaxBodyBytes caps JSON request bodies
const DefaultMaxBodyBytes = 1 << 20

// Default per-IP limits
var (
	DefaultSignupPolicy = middleware.RateLimitPolicy{
		Scope:       "signup",
		MaxAttempts: 10,
		Window:      time.Hour,
		Message:     "Too many signup attempts. Please try again later.",
	}
	DefaultLoginPolicy = middleware.RateLimitPolicy{
		Scope:       "login",
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		Message:     "Too many login attempts. Please try again later.",
	}
	DefaultForgotPasswordPolicy = middleware.RateLimitPolicy{
		Scope:       "forgot",
		MaxAttempts: 3,
		Window:      time.Hour,
		Message:     "Too many password reset attempts. Please try again later.",
	}
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Service *auth.Service
	Tokens  *auth.TokenIssuer
	Limiter auth.RateLimiter
	Audit   auth.AuditLogger
	Log     logrus.FieldLogger
	Cookies CookieConfig

	SignupPolicy         middleware.RateLimitPolicy
	LoginPolicy          middleware.RateLimitPolicy
	ForgotPasswordPolicy middleware.RateLimitPolicy

	AllowedOrigins []string
	MaxBodyBytes   int64

	// Health is pinged by /health. Nil reports healthy.
	Health Pinger
	// Metrics is served on /metrics when set.
	Metrics *prometheus.Registry
}

func policyOrDefault(p, def middleware.RateLimitPolicy) middleware.RateLimitPolicy {
	if p.MaxAttempts <= 0 || p.Window <= 0 {
		return def
	}
	if p.Scope == "" {
		p.Scope = def.Scope
	}
	if p.Message == "" {
		p.Message = def.Message
	}
	return p
}

// NewRouter builds the application router
func NewRouter(cfg RouterConfig) *mux.Router {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	limited := func(p, def middleware.RateLimitPolicy, h http.Handler) http.Handler {
		return middleware.RateLimit(cfg.Limiter, policyOrDefault(p, def), log)(h)
	}
	requireAuth := middleware.RequireAuth(cfg.Tokens)

	r := mux.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer(log),
		middleware.AccessLog(log),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.MaxBodySize(maxBody),
		middleware.RequestMeta,
	)
	// mux only runs middleware on matched routes; preflights need a match too
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/health", NewHealthHandler(cfg.Health)).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Metrics)).Methods(http.MethodGet)
	}

	a := r.PathPrefix("/api/auth").Subrouter()
	a.Handle("/signup", limited(cfg.SignupPolicy, DefaultSignupPolicy, NewSignupHandler(cfg.Service, log))).Methods(http.MethodPost)
	a.Handle("/login", limited(cfg.LoginPolicy, DefaultLoginPolicy, NewLoginHandler(cfg.Service, cfg.Cookies, log))).Methods(http.MethodPost)
	a.Handle("/forgot-password", limited(cfg.ForgotPasswordPolicy, DefaultForgotPasswordPolicy, NewForgotPasswordHandler(cfg.Service, log))).Methods(http.MethodPost)
	a.HandleFunc("/logout", NewLogoutHandler(cfg.Service, cfg.Cookies)).Methods(http.MethodPost)
	a.HandleFunc("/refresh", NewRefreshHandler(cfg.Service, cfg.Cookies, log)).Methods(http.MethodPost)
	a.HandleFunc("/reset-password", NewResetPasswordHandler(cfg.Service, log)).Methods(http.MethodPost)
	a.HandleFunc("/verify-email", NewVerifyEmailHandler(cfg.Service, log)).Methods(http.MethodGet)
	a.Handle("/me", requireAuth(NewMeHandler(cfg.Service, log))).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(requireAuth, middleware.RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/rate-limits/reset", NewResetRateLimitHandler(cfg.Limiter, cfg.Audit, log)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	return r
}
