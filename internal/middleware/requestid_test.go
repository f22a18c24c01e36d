package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("expected a uuid request id, got %q", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "edge-abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "edge-abc-123" {
		t.Errorf("expected inbound id to be kept, got %q", seen)
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) > maxRequestIDLen {
		t.Errorf("expected oversized id to be replaced, got %d chars", len(seen))
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDFromContext(req.Context()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestRequestMeta(t *testing.T) {
	var meta auth.RequestMeta
	handler := RequestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = auth.RequestMetaFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("User-Agent", "storefront-test/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if meta.ClientIP != "198.51.100.7" {
		t.Errorf("expected client ip '198.51.100.7', got %q", meta.ClientIP)
	}
	if meta.UserAgent != "storefront-test/1.0" {
		t.Errorf("expected user agent, got %q", meta.UserAgent)
	}
}
