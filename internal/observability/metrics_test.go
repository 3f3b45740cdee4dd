package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMatchCounters(t *testing.T) {
	m := NewMetrics()
	m.MatchCreated(KindAuto)
	m.MatchCreated(KindAuto)
	m.MatchCreated(KindManual)
	m.MatchConflict(KindManual)
	if got := testutil.ToFloat64(m.matchesCreated.WithLabelValues(KindAuto)); got != 2 {
		t.Fatalf("expected 2 auto matches, got %v", got)
	}
	if got := testutil.ToFloat64(m.matchConflicts.WithLabelValues(KindManual)); got != 1 {
		t.Fatalf("expected 1 manual conflict, got %v", got)
	}
	m.AutoMatchCompleted(150 * time.Millisecond)
	if got := testutil.CollectAndCount(m.autoMatchDuration); got != 1 {
		t.Fatalf("expected histogram to be collected, got %d", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/transactions/{side}/{id}/candidates", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/transactions/gate/G1/candidates", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/transactions/{side}/{id}/candidates", "404"))
	if got != 1 {
		t.Fatalf("expected one request recorded under the route pattern, got %v", got)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "reconciler_http_requests_total") {
		t.Fatalf("expected exposition to include request counter")
	}
}
