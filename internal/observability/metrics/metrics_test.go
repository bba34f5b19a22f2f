package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestNormalizesPath(t *testing.T) {
	rec := New()
	rec.ObserveRequest("get", "/api/v1/titles/0123456789abcdef0123456789abcdef", 200, 5*time.Millisecond)

	var out strings.Builder
	rec.Write(&out)
	body := out.String()
	if !strings.Contains(body, `path="/api/v1/titles/:id"`) {
		t.Fatalf("expected identifier segment to be collapsed, got:\n%s", body)
	}
	if !strings.Contains(body, `method="GET"`) {
		t.Fatalf("expected method upper-cased, got:\n%s", body)
	}
}

func TestDomainCountersRender(t *testing.T) {
	rec := New()
	rec.ObserveAuthEvent("token_issued")
	rec.ObserveAuthEvent("token_issued")
	rec.ObserveCatalogWrite("genre")
	rec.ObserveContentEvent("review_created")

	var out strings.Builder
	rec.Write(&out)
	body := out.String()
	for _, want := range []string{
		`yamdb_auth_events_total{event="token_issued"} 2`,
		`yamdb_catalog_writes_total{resource="genre"} 1`,
		`yamdb_content_events_total{event="review_created"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	rec := New()
	wrapped := HTTPMiddleware(rec, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	res := httptest.NewRecorder()
	wrapped.ServeHTTP(res, req)

	var out strings.Builder
	rec.Write(&out)
	if !strings.Contains(out.String(), `status="404"`) {
		t.Fatalf("expected 404 observation, got:\n%s", out.String())
	}
}
