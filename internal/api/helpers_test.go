package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/database/memory"
)

// captureNotifier keeps the last raw token mailed to each address
type captureNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{verification: map[string]string{}, reset: map[string]string{}}
}

func (n *captureNotifier) SendVerification(_ context.Context, user *auth.User, raw string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification[user.Email] = raw
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, user *auth.User, raw string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[user.Email] = raw
	return nil
}

func (n *captureNotifier) verificationToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verification[email]
}

func (n *captureNotifier) resetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router   *mux.Router
	svc      *auth.Service
	tokens   *auth.TokenIssuer
	limiter  *auth.MemoryRateLimiter
	users    auth.CredentialStore
	notifier *captureNotifier
	audit    *auth.InMemoryAuditLogger
	clock    *testClock
	logHook  *test.Hook
}

type serverOption func(*auth.Deps)

func withUsers(users auth.CredentialStore) serverOption {
	return func(d *auth.Deps) { d.Users = users }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	clk := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	log, hook := test.NewNullLogger()

	ts := &testServer{
		users:    memory.NewUserStore(),
		notifier: newCaptureNotifier(),
		audit:    auth.NewInMemoryAuditLogger(),
		clock:    clk,
		logHook:  hook,
		limiter:  auth.NewMemoryRateLimiter(0, 0, auth.WithClock(clk.Now)),
	}
	ts.tokens = auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  []byte("api-test-access-secret-0123456789abcdef"),
		RefreshSecret: []byte("api-test-refresh-secret-0123456789abcdef"),
		Now:           clk.Now,
	})

	deps := auth.Deps{
		Users:    ts.users,
		Sessions: memory.NewSessionStore(),
		Tokens:   ts.tokens,
		Hasher:   auth.NewBcryptHasher(4),
		Notifier: ts.notifier,
		Audit:    ts.audit,
		Log:      log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	ts.svc = auth.NewService(deps, auth.Options{AdminEmail: "owner@shop.test", Now: clk.Now})

	ts.router = NewRouter(RouterConfig{
		Service:        ts.svc,
		Tokens:         ts.tokens,
		Limiter:        ts.limiter,
		Audit:          ts.audit,
		Log:            log,
		Cookies:        CookieConfig{Secure: false, MaxAge: 7 * 24 * time.Hour},
		AllowedOrigins: []string{"https://shop.example.com"},
		MaxBodyBytes:   4096,
		Metrics:        prometheus.NewRegistry(),
	})
	return ts
}

type requestOption func(*http.Request)

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) {
		if c != nil {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
}

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withRemoteAddr(addr string) requestOption {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func (ts *testServer) do(method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	for _, opt := range opts {
		opt(req)
	}

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

// signupVerified registers and verifies an account through the HTTP surface
func (ts *testServer) signupVerified(t *testing.T, email, password string) {
	t.Helper()
	rr := ts.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Test Shopper", "email": email, "password": password,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	token := ts.notifier.verificationToken(strings.ToLower(email))
	rr = ts.do(http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func (ts *testServer) login(t *testing.T, email, password string) (LoginResponse, *http.Cookie) {
	t.Helper()
	rr := ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp LoginResponse
	decodeBody(t, rr, &resp)
	return resp, refreshCookie(rr)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	decodeBody(t, rr, &body)
	return body
}

func refreshCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	return nil
}

var errStoreDown = errors.New("store unavailable")

// brokenUsers fails every call
type brokenUsers struct{}

func (brokenUsers) FindByID(context.Context, string) (*auth.User, error) { return nil, errStoreDown }
func (brokenUsers) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, errStoreDown
}
func (brokenUsers) FindByVerificationTokenHash(context.Context, string, time.Time) (*auth.User, error) {
	return nil, errStoreDown
}
func (brokenUsers) FindByResetTokenHash(context.Context, string, time.Time) (*auth.User, error) {
	return nil, errStoreDown
}
func (brokenUsers) Create(context.Context, *auth.User) error { return errStoreDown }
func (brokenUsers) RecordLogin(context.Context, string, string, time.Time) (bool, error) {
	return false, errStoreDown
}
func (brokenUsers) SetResetToken(context.Context, string, string, time.Time) error {
	return errStoreDown
}
func (brokenUsers) ConsumeResetToken(context.Context, string, time.Time, string) (*auth.User, error) {
	return nil, errStoreDown
}
func (brokenUsers) ConsumeVerificationToken(context.Context, string, time.Time) (*auth.User, error) {
	return nil, errStoreDown
}

// doHandler runs a single handler outside the router
func (ts *testServer) doHandler(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
