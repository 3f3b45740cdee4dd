package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	KindAuto   = "auto"
	KindManual = "manual"
)

type Metrics struct {
	registry *prometheus.Registry

	matchesCreated    *prometheus.CounterVec
	matchConflicts    *prometheus.CounterVec
	autoMatchDuration prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

// NewMetrics registers the service collectors on a private registry so
// tests can build as many instances as they need.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		matchesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_matches_created_total",
			Help: "Matches persisted, by kind",
		}, []string{"kind"}),
		matchConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_match_conflicts_total",
			Help: "Match attempts rejected because a side was already matched",
		}, []string{"kind"}),
		autoMatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciler_auto_match_duration_seconds",
			Help:    "Duration of automatic matching runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconciler_http_request_duration_seconds",
			Help:    "Request latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) MatchCreated(kind string) {
	m.matchesCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) MatchConflict(kind string) {
	m.matchConflicts.WithLabelValues(kind).Inc()
}

func (m *Metrics) AutoMatchCompleted(elapsed time.Duration) {
	m.autoMatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(started).Seconds())
	})
}
