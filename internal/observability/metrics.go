// Package observability holds the Prometheus registry, HTTP metrics and the
// domain counters the services report into.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the application registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	approvals       *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	uploadBytes     prometheus.Histogram
	stageDrift      prometheus.Counter
}

// NewMetrics builds the registry with process, Go runtime, HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabricflow_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabricflow_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabricflow_approval_transitions_total",
		Help: "Approval state changes by approval type and new state.",
	}, []string{"approval_type", "state"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabricflow_documents_uploaded_total",
		Help: "Uploaded documents by category.",
	}, []string{"category"})
	uploadBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fabricflow_document_upload_bytes",
		Help:    "Size of uploaded documents.",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 7),
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabricflow_stage_drift_total",
		Help: "Reads where the stored stage disagreed with the derived stage.",
	})
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, duration, approvals, uploads, uploadBytes, drift,
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		approvals:       approvals,
		uploads:         uploads,
		uploadBytes:     uploadBytes,
		stageDrift:      drift,
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and duration per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveApproval counts one approval state change.
func (m *Metrics) ObserveApproval(approvalType, state string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(approvalType, state).Inc()
}

// ObserveUpload counts one stored document.
func (m *Metrics) ObserveUpload(category string, size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(category).Inc()
	m.uploadBytes.Observe(float64(size))
}

// ObserveStageDrift counts one drifted read.
func (m *Metrics) ObserveStageDrift() {
	if m == nil {
		return
	}
	m.stageDrift.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
