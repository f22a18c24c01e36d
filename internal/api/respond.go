package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/metrics"
	"github.com/mark-chris/storefront-auth/internal/middleware"
)

// Operation names used in logs and metrics
const (
	opSignup         = "signup"
	opLogin          = "login"
	opLogout         = "logout"
	opRefresh        = "refresh"
	opForgotPassword = "forgot_password"
	opResetPassword  = "reset_password"
	opVerifyEmail    = "verify_email"
	opCurrentUser    = "current_user"
	opRateLimitReset = "rate_limit_reset"
)

var serverErrorMessages = map[string]string{
	opSignup:         "Server error during signup",
	opLogin:          "Server error during login",
	opLogout:         "Server error during logout",
	opRefresh:        "Server error during token refresh",
	opForgotPassword: "Server error during password reset request",
	opResetPassword:  "Server error during password reset",
	opVerifyEmail:    "Server error during email verification",
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Ignore error - response already started
}

// writeSuccess records a successful operation and writes the body
func writeSuccess(w http.ResponseWriter, op string, status int, data any) {
	metrics.RecordAuthOperation(op, metrics.OutcomeSuccess, "")
	writeJSON(w, status, data)
}

// writeError maps a service error to a response. Domain errors carry a
// client-safe message; anything else is logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, op string, err error) {
	var ae *auth.Error
	if errors.As(err, &ae) {
		metrics.RecordAuthOperation(op, metrics.OutcomeFailure, ae.Kind.String())

		body := map[string]any{"error": ae.Message}
		switch ae.Kind {
		case auth.KindEmailNotVerified:
			body["emailVerified"] = false
		case auth.KindInvalidOrExpiredToken:
			if ae.Expired {
				body["expired"] = true
			}
		case auth.KindRateLimited:
			body["retryAfter"] = ae.RetryAfter
			w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
		}
		writeJSON(w, ae.Kind.HTTPStatus(), body)
		return
	}

	metrics.RecordAuthOperation(op, metrics.OutcomeError, auth.KindInternal.String())

	fields := logrus.Fields{
		"endpoint":   op,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	}
	if oe, ok := oops.AsOops(err); ok {
		fields["code"] = oe.Code()
		for k, v := range oe.Context() {
			fields[k] = v
		}
	}
	log.WithError(err).WithFields(fields).Error("request failed")

	msg, ok := serverErrorMessages[op]
	if !ok {
		msg = "Internal server error"
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

// decodeJSON decodes a single JSON object into dst, rejecting unknown fields.
// On failure the response has been written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		if _, extra := dec.Token(); extra != io.EOF {
			err = errors.New("request body must contain a single JSON object")
		}
	}
	if err == nil {
		return true
	}

	if middleware.HandleMaxBytesError(w, err) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": "Invalid request body",
	})
	return false
}
