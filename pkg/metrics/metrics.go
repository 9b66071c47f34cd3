// Package metrics exposes the service's Prometheus metrics and instruments
// HTTP handlers. Component metrics are defined in their own packages (cache,
// ratelimit, chapters) and registered via promauto.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all service metrics are added to.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - chapters_http_requests_total{route, method, status} (Counter)
//   - chapters_http_request_duration_seconds{route, method} (Histogram)
//
// Cache Metrics (pkg/cache):
//   - chapters_cache_hits_total{key} (Counter)
//   - chapters_cache_misses_total{key} (Counter)
//   - chapters_cache_invalidations_total{key} (Counter)
//   - chapters_cache_errors_total{operation} (Counter)
//   - chapters_cache_breaker_state (Gauge): 0 closed, 1 half-open, 2 open
//
// Rate Limit Metrics (pkg/ratelimit):
//   - chapters_rate_limit_requests_total{backend, outcome} (Counter)
//   - chapters_rate_limit_backend{backend} (Gauge)
//
// Store Metrics (pkg/chapters):
//   - chapters_store_operations_total{operation, outcome} (Counter)
//   - chapters_import_records_total{outcome} (Counter)
//   - chapters_import_duration_seconds (Histogram)
//
// Startup Metrics (internal/retry):
//   - chapters_connect_retries_total{target} (Counter)
//   - chapters_connect_retry_exhausted_total{target} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(chapters_cache_hits_total[5m])) /
//   (sum(rate(chapters_cache_hits_total[5m])) + sum(rate(chapters_cache_misses_total[5m])))
//
//   # Rate limited share of traffic
//   sum(rate(chapters_rate_limit_requests_total{outcome="blocked"}[5m])) /
//   sum(rate(chapters_rate_limit_requests_total[5m]))
//
//   # P95 list latency
//   histogram_quantile(0.95, rate(chapters_http_request_duration_seconds_bucket{route="/api/v1/chapters"}[5m]))

var (
	httpRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "chapters_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chapters_http_request_duration_seconds",
		Help:    "HTTP request duration by route and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count and latency, labelled by the matched
// chi route pattern so path parameters do not explode cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
