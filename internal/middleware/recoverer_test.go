package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestRecoverer_Panic(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	handler := Recoverer(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	if got := decodeError(t, rr); got != "Internal server error" {
		t.Errorf("unexpected error body %q", got)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Data["panic"] != "boom" {
		t.Errorf("expected error log with panic value, got %+v", entry)
	}
}

func TestRecoverer_NoPanic(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	handler := Recoverer(log)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(hook.AllEntries()) != 0 {
		t.Errorf("expected no log entries, got %d", len(hook.AllEntries()))
	}
}

func TestRecoverer_AbortHandlerRepanics(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	handler := Recoverer(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rv := recover(); rv != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rv)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
