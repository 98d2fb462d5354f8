package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Mutation metrics
	MutationsTotal   *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	BulkItemsTotal   *prometheus.CounterVec

	// Resolver cache metrics
	ResolverCacheTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_mutations_total",
				Help: "Total number of authorization mutations by operation and outcome code",
			},
			[]string{"operation", "outcome"},
		),
		MutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_mutation_duration_seconds",
				Help:    "Mutation duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		BulkItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_bulk_items_total",
				Help: "Items processed by bulk deletes, split into deleted and blocked",
			},
			[]string{"kind", "result"},
		),

		ResolverCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_resolver_cache_total",
				Help: "Permission resolver cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MutationsTotal,
		m.MutationDuration,
		m.BulkItemsTotal,
		m.ResolverCacheTotal,
	)

	return m
}

// RegisterDBStats exports connection pool statistics for db under the given name
func RegisterDBStats(registry *prometheus.Registry, db *sql.DB, name string) error {
	return registry.Register(collectors.NewDBStatsCollector(db, name))
}

// RecordMutation records the outcome of one engine operation
func (m *Metrics) RecordMutation(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(operation, outcome).Inc()
	m.MutationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordBulk records the partition of a bulk delete
func (m *Metrics) RecordBulk(kind string, deleted, blocked int) {
	if m == nil {
		return
	}
	m.BulkItemsTotal.WithLabelValues(kind, "deleted").Add(float64(deleted))
	m.BulkItemsTotal.WithLabelValues(kind, "blocked").Add(float64(blocked))
}

// ResolverCacheHit counts a resolver cache hit
func (m *Metrics) ResolverCacheHit() {
	if m == nil {
		return
	}
	m.ResolverCacheTotal.WithLabelValues("hit").Inc()
}

// ResolverCacheMiss counts a resolver cache miss
func (m *Metrics) ResolverCacheMiss() {
	if m == nil {
		return
	}
	m.ResolverCacheTotal.WithLabelValues("miss").Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the matched route template so ids do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
