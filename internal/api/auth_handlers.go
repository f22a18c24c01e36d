package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/middleware"
)

// SignupResponse represents the signup response body
type SignupResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// LoginResponse represents the login response body
type LoginResponse struct {
	Message     string          `json:"message"`
	AccessToken string          `json:"accessToken"`
	TokenType   string          `json:"tokenType"`
	ExpiresIn   int             `json:"expiresIn"`
	User        auth.PublicUser `json:"user"`
}

// RefreshResponse represents the refresh response body
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// MessageResponse is a body carrying only a message
type MessageResponse struct {
	Message string `json:"message"`
}

// VerifyEmailResponse represents the verify-email response body
type VerifyEmailResponse struct {
	Message       string `json:"message"`
	EmailVerified bool   `json:"emailVerified"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// NewSignupHandler creates a new signup handler
func NewSignupHandler(svc *auth.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.SignupInput
		if !decodeJSON(w, r, &req) {
			return
		}

		result, err := svc.Signup(r.Context(), req)
		if err != nil {
			writeError(w, r, log, opSignup, err)
			return
		}

		writeSuccess(w, opSignup, http.StatusCreated, SignupResponse{
			Message: result.Message,
			UserID:  result.UserID,
		})
	}
}

// NewLoginHandler creates a new login handler.
// The refresh token only leaves through the cookie.
func NewLoginHandler(svc *auth.Service, cookies CookieConfig, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginInput
		if !decodeJSON(w, r, &req) {
			return
		}

		result, err := svc.Login(r.Context(), req)
		if err != nil {
			writeError(w, r, log, opLogin, err)
			return
		}

		setRefreshCookie(w, cookies, result.RefreshToken)
		writeSuccess(w, opLogin, http.StatusOK, LoginResponse{
			Message:     "Login successful",
			AccessToken: result.AccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(result.ExpiresIn.Seconds()),
			User:        result.User,
		})
	}
}

// NewLogoutHandler creates a new logout handler. It always succeeds and
// always clears the cookie.
func NewLogoutHandler(svc *auth.Service, cookies CookieConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Logout(r.Context(), refreshTokenFrom(r))

		clearRefreshCookie(w, cookies)
		writeSuccess(w, opLogout, http.StatusOK, MessageResponse{
			Message: "Logged out successfully",
		})
	}
}

// NewRefreshHandler creates a new refresh handler that rotates the refresh cookie
func NewRefreshHandler(svc *auth.Service, cookies CookieConfig, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Refresh(r.Context(), refreshTokenFrom(r))
		if err != nil {
			writeError(w, r, log, opRefresh, err)
			return
		}

		setRefreshCookie(w, cookies, result.RefreshToken)
		writeSuccess(w, opRefresh, http.StatusOK, RefreshResponse{
			AccessToken: result.AccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(result.ExpiresIn.Seconds()),
		})
	}
}

// NewForgotPasswordHandler creates a new forgot-password handler
func NewForgotPasswordHandler(svc *auth.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		msg, err := svc.ForgotPassword(r.Context(), req.Email)
		if err != nil {
			writeError(w, r, log, opForgotPassword, err)
			return
		}

		writeSuccess(w, opForgotPassword, http.StatusOK, MessageResponse{Message: msg})
	}
}

// NewResetPasswordHandler creates a new reset-password handler
func NewResetPasswordHandler(svc *auth.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ResetPasswordInput
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.ResetPassword(r.Context(), req); err != nil {
			writeError(w, r, log, opResetPassword, err)
			return
		}

		writeSuccess(w, opResetPassword, http.StatusOK, MessageResponse{
			Message: "Password reset successful. Please login with your new password.",
		})
	}
}

// NewVerifyEmailHandler creates a new verify-email handler reading ?token=
func NewVerifyEmailHandler(svc *auth.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
			writeError(w, r, log, opVerifyEmail, err)
			return
		}

		writeSuccess(w, opVerifyEmail, http.StatusOK, VerifyEmailResponse{
			Message:       "Email verified successfully",
			EmailVerified: true,
		})
	}
}

// NewMeHandler returns the authenticated user. Must run behind RequireAuth.
func NewMeHandler(svc *auth.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Authentication required",
			})
			return
		}

		user, err := svc.CurrentUser(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, r, log, opCurrentUser, err)
			return
		}

		writeSuccess(w, opCurrentUser, http.StatusOK, map[string]any{"user": user})
	}
}
