package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveUpstreamLabelsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveUpstream("driving-car", 20*time.Millisecond, nil)
	c.ObserveUpstream("driving-car", 30*time.Millisecond, errors.New("boom"))
	c.ObserveUpstream("driving-car", 10*time.Millisecond, nil)

	if got := testutil.ToFloat64(c.UpstreamRequests.WithLabelValues("driving-car", OutcomeOK)); got != 2 {
		t.Fatalf("ok requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.UpstreamRequests.WithLabelValues("driving-car", OutcomeError)); got != 1 {
		t.Fatalf("error requests = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "isochrone_upstream_request_duration_seconds"); count != 3 {
		t.Fatalf("duration sample_count = %d, want 3", count)
	}
}

func TestNewCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.AddResults(3)
	if got := testutil.ToFloat64(second.ResultsRecorded); got != 3 {
		t.Fatalf("shared counter = %v, want 3", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveUpstream("foot-walking", time.Second, nil)
	c.AddResults(1)
	c.IncExport("geojson")
	c.SetActiveSessions(2)
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.SetActiveSessions(4)
	c.IncExport("geojson")

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		"isochrone_active_sessions 4",
		`isochrone_exports_total{format="geojson"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total uint64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += histogram(m).GetSampleCount()
		}
	}
	return total
}

func histogram(m *dto.Metric) *dto.Histogram {
	if m == nil {
		return nil
	}
	return m.GetHistogram()
}
