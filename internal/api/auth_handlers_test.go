package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

const testPassword = "Sup3rSecret"

func TestSignupHandler_Created(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": testPassword, "phone": "555-0100",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SignupResponse
	decodeBody(t, rr, &resp)
	if resp.UserID == "" {
		t.Error("expected userId in response")
	}
	if resp.Message != "Signup successful. Please check your email to verify your account." {
		t.Errorf("unexpected message %q", resp.Message)
	}
	// The raw verification token only travels by email
	if token := ts.notifier.verificationToken("ada@example.com"); token == "" || strings.Contains(rr.Body.String(), token) {
		t.Error("verification token must be mailed and never returned in the body")
	}
}

func TestSignupHandler_Failures(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "taken@example.com", testPassword)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"duplicate email", map[string]string{"name": "T", "email": "TAKEN@example.com", "password": testPassword}, http.StatusConflict, "User already exists with this email"},
		{"missing fields", map[string]string{"email": "x@example.com"}, http.StatusBadRequest, "Name, email and password are required"},
		{"bad email", map[string]string{"name": "T", "email": "nope", "password": testPassword}, http.StatusBadRequest, "Invalid email format"},
		{"weak password", map[string]string{"name": "T", "email": "w@example.com", "password": "abcdefgh"}, http.StatusBadRequest, "Password must contain both letters and numbers"},
		{"unknown field", map[string]string{"name": "T", "email": "u@example.com", "password": testPassword, "role": "admin"}, http.StatusBadRequest, "Invalid request body"},
		{"malformed json", `{"name":`, http.StatusBadRequest, "Invalid request body"},
		{"two objects", `{"name":"T"}{"name":"U"}`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/auth/signup", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if got := errorBody(t, rr)["error"]; got != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, got)
			}
		})
	}
}

func TestSignupHandler_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)

	body := `{"name":"` + strings.Repeat("a", 8192) + `"}`
	rr := ts.do(http.MethodPost, "/api/auth/signup", body)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rr.Code)
	}
}

func TestLoginHandler_SetsRefreshCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "shopper@example.com", testPassword)

	resp, cookie := ts.login(t, "shopper@example.com", testPassword)

	if resp.Message != "Login successful" || resp.TokenType != "Bearer" || resp.ExpiresIn != 900 {
		t.Errorf("unexpected login response: %+v", resp)
	}
	if resp.AccessToken == "" {
		t.Error("expected access token in body")
	}
	if resp.User.Email != "shopper@example.com" || !resp.User.EmailVerified || resp.User.Role != auth.RoleCustomer {
		t.Errorf("unexpected user: %+v", resp.User)
	}

	if cookie == nil {
		t.Fatal("expected refreshToken cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || cookie.Path != "/" {
		t.Errorf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.MaxAge != 7*24*60*60 {
		t.Errorf("expected Max-Age 604800, got %d", cookie.MaxAge)
	}
	if cookie.Secure {
		t.Error("cookie should not be Secure outside production")
	}
}

func TestLoginHandler_SecureCookieInProduction(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "prod@example.com", testPassword)

	log, _ := test.NewNullLogger()
	handler := NewLoginHandler(ts.svc, CookieConfig{Secure: true}, log)
	rr := ts.doHandler(handler, http.MethodPost, "/api/auth/login", map[string]string{"email": "prod@example.com", "password": testPassword})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	cookie := refreshCookie(rr)
	if cookie == nil || !cookie.Secure {
		t.Errorf("expected Secure cookie, got %+v", cookie)
	}
}

func TestLoginHandler_UnverifiedAccount(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(http.MethodPost, "/api/auth/signup", map[string]string{"name": "N", "email": "new@example.com", "password": testPassword})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup failed: %d", rr.Code)
	}

	rr = ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "new@example.com", "password": testPassword})

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	body := errorBody(t, rr)
	if body["emailVerified"] != false {
		t.Errorf("expected emailVerified:false hint, got %v", body)
	}
	if refreshCookie(rr) != nil {
		t.Error("no cookie should be set for an unverified login")
	}
}

func TestLoginHandler_IdenticalFailureBodies(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "known@example.com", testPassword)

	wrongPassword := ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "known@example.com", "password": "Wr0ngPassword"})
	unknownEmail := ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": "Wr0ngPassword"})

	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Errorf("bodies differ: %q vs %q", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestLoginHandler_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		rr := ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "x@example.com", "password": "Wr0ngPassword"})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}

	rr := ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "x@example.com", "password": "Wr0ngPassword"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "900" {
		t.Errorf("expected Retry-After 900, got %q", got)
	}
	if got := errorBody(t, rr)["error"]; got != "Too many login attempts. Please try again later." {
		t.Errorf("unexpected message %v", got)
	}

	ts.clock.Advance(15*time.Minute + time.Second)
	rr = ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "x@example.com", "password": "Wr0ngPassword"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected limit to reset after the window, got %d", rr.Code)
	}
}

func TestRefreshHandler_RotatesCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "rotate@example.com", testPassword)
	_, first := ts.login(t, "rotate@example.com", testPassword)

	ts.clock.Advance(time.Second)
	rr := ts.do(http.MethodPost, "/api/auth/refresh", nil, withCookie(first))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp RefreshResponse
	decodeBody(t, rr, &resp)
	if resp.AccessToken == "" || resp.TokenType != "Bearer" || resp.ExpiresIn != 900 {
		t.Errorf("unexpected refresh response: %+v", resp)
	}
	second := refreshCookie(rr)
	if second == nil || second.Value == "" || second.Value == first.Value {
		t.Fatalf("expected a rotated cookie, got %+v", second)
	}

	// The consumed token is dead
	rr = ts.do(http.MethodPost, "/api/auth/refresh", nil, withCookie(first))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 on reuse, got %d", rr.Code)
	}
	if got := errorBody(t, rr)["error"]; got != "Refresh token not found or expired" {
		t.Errorf("unexpected reuse message %v", got)
	}

	// The rotated token still works
	rr = ts.do(http.MethodPost, "/api/auth/refresh", nil, withCookie(second))
	if rr.Code != http.StatusOK {
		t.Errorf("expected rotated token to refresh, got %d", rr.Code)
	}
}

func TestRefreshHandler_Rejections(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		cookie  *http.Cookie
		wantErr string
	}{
		{"no cookie", nil, "No refresh token provided"},
		{"garbage", &http.Cookie{Name: RefreshCookieName, Value: "not-a-token"}, "Invalid refresh token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/auth/refresh", nil, withCookie(tt.cookie))
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if got := errorBody(t, rr)["error"]; got != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, got)
			}
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "bye@example.com", testPassword)
	_, cookie := ts.login(t, "bye@example.com", testPassword)

	rr := ts.do(http.MethodPost, "/api/auth/logout", nil, withCookie(cookie))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	cleared := refreshCookie(rr)
	if cleared == nil || cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Errorf("expected cleared cookie, got %+v", cleared)
	}

	rr = ts.do(http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected refresh after logout to fail, got %d", rr.Code)
	}

	// Logout without a cookie still succeeds
	rr = ts.do(http.MethodPost, "/api/auth/logout", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 without cookie, got %d", rr.Code)
	}
}

func TestForgotPasswordHandler_GenericResponse(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "forgetful@example.com", testPassword)

	known := ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "forgetful@example.com"}, withRemoteAddr("203.0.113.1:1"))
	unknown := ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, withRemoteAddr("203.0.113.2:1"))

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Errorf("bodies differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
	if ts.notifier.resetToken("forgetful@example.com") == "" {
		t.Error("expected a reset email for the known account")
	}

	bad := ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "bad"}, withRemoteAddr("203.0.113.3:1"))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed email, got %d", bad.Code)
	}
}

func TestForgotPasswordHandler_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@example.com"})
	}
	rr := ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@example.com"})

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 on 4th attempt, got %d", rr.Code)
	}
	if got := errorBody(t, rr)["retryAfter"]; got != float64(3600) {
		t.Errorf("expected retryAfter 3600, got %v", got)
	}
}

func TestResetPasswordHandler_Flow(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "reset@example.com", testPassword)
	_, cookie := ts.login(t, "reset@example.com", testPassword)

	ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "reset@example.com"})
	token := ts.notifier.resetToken("reset@example.com")

	rr := ts.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "N3wPassword"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp MessageResponse
	decodeBody(t, rr, &resp)
	if resp.Message != "Password reset successful. Please login with your new password." {
		t.Errorf("unexpected message %q", resp.Message)
	}

	// Existing sessions are revoked
	if rr := ts.do(http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie)); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected old session to be revoked, got %d", rr.Code)
	}

	// Token is single use
	rr = ts.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "An0therPass"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on reuse, got %d", rr.Code)
	}
	if body := errorBody(t, rr); body["expired"] != true {
		t.Errorf("expected expired:true hint, got %v", body)
	}

	ts.login(t, "reset@example.com", "N3wPassword")
}

func TestResetPasswordHandler_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": "abc"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := errorBody(t, rr)["error"]; got != "Token and new password are required" {
		t.Errorf("unexpected error %v", got)
	}
}

func TestVerifyEmailHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/auth/signup", map[string]string{"name": "V", "email": "verify@example.com", "password": testPassword})
	token := ts.notifier.verificationToken("verify@example.com")

	rr := ts.do(http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp VerifyEmailResponse
	decodeBody(t, rr, &resp)
	if !resp.EmailVerified || resp.Message != "Email verified successfully" {
		t.Errorf("unexpected response %+v", resp)
	}

	rr = ts.do(http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on reuse, got %d", rr.Code)
	}

	rr = ts.do(http.MethodGet, "/api/auth/verify-email", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", rr.Code)
	}
	if got := errorBody(t, rr)["error"]; got != "Verification token is required" {
		t.Errorf("unexpected error %v", got)
	}
}

func TestMeHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.signupVerified(t, "me@example.com", testPassword)
	resp, _ := ts.login(t, "me@example.com", testPassword)

	rr := ts.do(http.MethodGet, "/api/auth/me", nil, withBearer(resp.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		User auth.PublicUser `json:"user"`
	}
	decodeBody(t, rr, &body)
	if body.User.Email != "me@example.com" {
		t.Errorf("unexpected user %+v", body.User)
	}

	if rr := ts.do(http.MethodGet, "/api/auth/me", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer, got %d", rr.Code)
	}
}

func TestHandlers_InternalErrorIsGeneric(t *testing.T) {
	ts := newTestServer(t, withUsers(brokenUsers{}))

	rr := ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": testPassword})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if got := errorBody(t, rr)["error"]; got != "Server error during login" {
		t.Errorf("unexpected error %v", got)
	}
	if strings.Contains(rr.Body.String(), errStoreDown.Error()) {
		t.Error("internal error leaked into response")
	}

	var logged bool
	for _, entry := range ts.logHook.AllEntries() {
		if entry.Message == "request failed" && entry.Level == logrus.ErrorLevel && entry.Data["code"] == "LOGIN_FAILED" {
			logged = true
		}
	}
	if !logged {
		t.Error("expected error log carrying the oops code")
	}
}
