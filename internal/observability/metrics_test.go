package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	body := scrape(t, NewMetrics())
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/orders/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/orders/1", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `fabricflow_http_requests_total{code="418",route="/api/orders/{id}"} 1`)
	assert.Contains(t, body, `fabricflow_http_request_duration_seconds_bucket{route="/api/orders/{id}"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveApproval("strikeOff", "approved")
	metrics.ObserveApproval("strikeOff", "approved")
	metrics.ObserveUpload("sample", 2048)
	metrics.ObserveStageDrift()

	body := scrape(t, metrics)
	assert.Contains(t, body, `fabricflow_approval_transitions_total{approval_type="strikeOff",state="approved"} 2`)
	assert.Contains(t, body, `fabricflow_documents_uploaded_total{category="sample"} 1`)
	assert.Contains(t, body, `fabricflow_document_upload_bytes_count 1`)
	assert.Contains(t, body, `fabricflow_stage_drift_total 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveApproval("labDip", "rejected")
	nilMetrics.ObserveUpload("lc", 1)
	nilMetrics.ObserveStageDrift()
}
