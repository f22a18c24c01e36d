package api

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie carrying the raw refresh token
const RefreshCookieName = "refreshToken"

// CookieConfig controls the refresh cookie attributes
type CookieConfig struct {
	// Secure is set in production so the cookie only travels over TLS.
	Secure bool
	MaxAge time.Duration
}

func (c CookieConfig) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.MaxAge
}

// setRefreshCookie hands the raw refresh token to the browser
func setRefreshCookie(w http.ResponseWriter, cfg CookieConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.maxAge().Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh cookie
func clearRefreshCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFrom returns the raw refresh token, or "" when absent
func refreshTokenFrom(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
