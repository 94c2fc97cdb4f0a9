package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"serialrent-backend/internal/domain"
)

// Metrics collects HTTP and rental lifecycle metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	reqTotal   *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec

	transitions *prometheus.CounterVec
	allocFails  *prometheus.CounterVec
	returns     *prometheus.CounterVec
	scans       *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serial_transitions_total",
			Help: "Serial unit state changes",
		}, []string{"from", "to"}),
		allocFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "allocation_failures_total",
			Help: "Rejected allocations by error kind",
		}, []string{"kind"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "returned_units_total",
			Help: "Returned units by condition",
		}, []string{"condition"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Handled scans by action and result level",
		}, []string{"action", "level"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Scheduled job runs by outcome",
		}, []string{"job", "outcome"}),
	}
	registry.MustRegister(m.reqTotal, m.reqLatency, m.transitions, m.allocFails, m.returns, m.scans, m.jobRuns)
	return m
}

func (m *Metrics) SerialTransition(from, to domain.SerialState) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) AllocationFailed(kind string) {
	m.allocFails.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReturnProcessed(condition domain.Condition) {
	m.returns.WithLabelValues(string(condition)).Inc()
}

func (m *Metrics) ScanHandled(action domain.ScanAction, level domain.ScanLevel) {
	m.scans.WithLabelValues(string(action), string(level)).Inc()
}

// JobFinished records one scheduled job run; err == nil counts as success.
func (m *Metrics) JobFinished(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

// Middleware records request count and latency labelled by the mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		status := strconv.Itoa(rw.code)
		m.reqTotal.WithLabelValues(r.Method, path, status).Inc()
		m.reqLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry to tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}
