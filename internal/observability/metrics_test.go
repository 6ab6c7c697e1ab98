package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sitefund/sitefund/internal/jobs"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()

	jobMetrics := jobs.NewMetrics(metrics.Registerer())
	_ = jobMetrics.Track("recalc_profits").End(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "sitefund_jobs_total") {
		t.Fatalf("expected body to contain sitefund_jobs_total, got: %s", body)
	}
}

func TestNilMetricsHandlerUnavailable(t *testing.T) {
	var metrics *Metrics

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
