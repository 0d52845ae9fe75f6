package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	RepositoryOperations *prometheus.CounterVec
	RepositoryDuration   *prometheus.HistogramVec

	WorkflowOutcomes *prometheus.CounterVec
	UploadAttempts   *prometheus.CounterVec

	RoleChangesTotal *prometheus.CounterVec

	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
}

// NewMetrics creates and registers the service metrics on the given registerer.
// Pass prometheus.DefaultRegisterer for normal use or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casedesk_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "casedesk_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
		RepositoryOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_repository_operations_total",
				Help: "Total number of repository operations by outcome",
			},
			[]string{"repository", "operation", "outcome"},
		),
		RepositoryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casedesk_repository_operation_duration_seconds",
				Help:    "Repository operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"repository", "operation"},
		),
		WorkflowOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_workflow_outcomes_total",
				Help: "Workflow completions by workflow and outcome",
			},
			[]string{"workflow", "outcome"},
		),
		UploadAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_upload_attempts_total",
				Help: "Document upload attempts by delivery mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		RoleChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_role_changes_total",
				Help: "Role changes applied by previous and new role",
			},
			[]string{"from", "to"},
		),
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "casedesk_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "casedesk_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		DBConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "casedesk_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}
}

// ObserveRepository records a repository operation outcome and duration
func (m *Metrics) ObserveRepository(repository, operation, outcome string, duration time.Duration) {
	m.RepositoryOperations.WithLabelValues(repository, operation, outcome).Inc()
	m.RepositoryDuration.WithLabelValues(repository, operation).Observe(duration.Seconds())
}

// CollectDBStats copies the sql.DB pool stats into the gauges
func (m *Metrics) CollectDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware instruments an HTTP handler with request metrics.
// The path label uses the mux route template when available so that
// /documents/42 and /documents/7 share a series.
func (m *Metrics) HTTPMiddleware(routePath func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if routePath != nil {
				if p := routePath(r); p != "" {
					path = p
				}
			}

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
		})
	}
}

// MetricsHandler returns the Prometheus scrape handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
