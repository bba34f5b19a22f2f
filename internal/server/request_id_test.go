package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Spacemarine1789/yamdb-final/internal/observability/logging"
)

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = logging.RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" }, next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "generated-id" {
		t.Fatalf("context request ID = %q", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "generated-id" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}

func TestRequestIDMiddlewarePrefersInbound(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = logging.RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" }, next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "  inbound-id  ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "inbound-id" {
		t.Fatalf("context request ID = %q, want inbound-id", seen)
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	if newRequestID() == newRequestID() {
		t.Fatal("expected distinct request IDs")
	}
}
