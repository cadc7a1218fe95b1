package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/cabinetdb/pkg/store"
)

const (
	namespace = "cabinet"

	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the Prometheus collectors of the API server.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight *prometheus.GaugeVec
	dbOperations *prometheus.CounterVec
	dbDuration   *prometheus.HistogramVec
	dbFailures   *prometheus.CounterVec
	dbKeys       prometheus.Gauge
	dbSize       prometheus.Gauge
	authRequests *prometheus.CounterVec
	healthChecks *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
			Buckets: prometheus.DefBuckets,
		}, labels)
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}

	return &Metrics{
		httpRequests: counter("http", "requests_total", "HTTP requests served.",
			"method", "endpoint", "status_code"),
		httpDuration: histogram("http", "request_duration_seconds", "HTTP request latency.",
			"method", "endpoint"),
		httpInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests being served.",
		}, []string{"method", "endpoint"}),

		dbOperations: counter("db", "operations_total", "Record store operations by outcome.",
			"operation", "status"),
		dbDuration: histogram("db", "operation_duration_seconds", "Record store operation latency.",
			"operation"),
		dbFailures: counter("db", "failures_total", "Failed record store operations by failure category.",
			"operation", "category"),
		dbKeys: gauge("db", "keys_total", "Records in the database."),
		dbSize: gauge("db", "data_size_bytes", "Database size in bytes."),

		authRequests: counter("auth", "requests_total", "Requests that presented an API key.", "status"),
		healthChecks: counter("health", "checks_total", "Health checks served.", "status"),
	}
}

func outcome(ok bool) string {
	if ok {
		return statusSuccess
	}
	return statusError
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RecordDBOperation records a store call. A failure is also counted under
// its store category.
func (m *Metrics) RecordDBOperation(operation string, err error, d time.Duration) {
	if err != nil {
		m.dbFailures.WithLabelValues(operation, failureCategory(err)).Inc()
	}
	m.dbOperations.WithLabelValues(operation, outcome(err == nil)).Inc()
	m.dbDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// failureCategory names the category of a store failure. Precondition
// failures raised before the engine is called have none.
func failureCategory(err error) string {
	if c := store.CategoryOf(err); c != 0 {
		return c.String()
	}
	return "precondition"
}

// UpdateDBStats sets the record count and size gauges.
func (m *Metrics) UpdateDBStats(keys, size int64) {
	m.dbKeys.Set(float64(keys))
	m.dbSize.Set(float64(size))
}

// RecordAuthRequest counts a request that carried an API key.
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequests.WithLabelValues(outcome(success)).Inc()
}

// RecordHealthCheck counts a health check.
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecks.WithLabelValues(outcome(success)).Inc()
}

// InstrumentHandler wraps handler with request, latency and in-flight
// metrics labelled by method and route pattern.
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inFlight := m.httpInFlight.WithLabelValues(method, endpoint)
		inFlight.Inc()
		defer inFlight.Dec()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rw, r)
		m.RecordHTTPRequest(method, endpoint, rw.status, time.Since(start))
	}
}

// InstrumentAuthMiddleware counts the outcome of every request that
// presented an API key to the wrapped authentication middleware.
func (m *Metrics) InstrumentAuthMiddleware(auth func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		guarded := auth(h)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") == "" {
				guarded.ServeHTTP(w, r)
				return
			}
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			guarded.ServeHTTP(rw, r)
			m.RecordAuthRequest(rw.status != http.StatusUnauthorized)
		})
	}
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
