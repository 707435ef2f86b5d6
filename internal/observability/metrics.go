package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream request outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector bundles the Prometheus metrics of the isochrone service.
type Collector struct {
	gatherer prometheus.Gatherer

	UpstreamRequests  *prometheus.CounterVec
	UpstreamDurations *prometheus.HistogramVec
	ResultsRecorded   prometheus.Counter
	Exports           *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
}

// NewCollector registers metrics against the provided registerer, defaulting
// to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isochrone_upstream_requests_total",
		Help: "Isochrone requests sent to the routing service, labeled by mode and outcome.",
	}, []string{"mode", "outcome"}), "isochrone_upstream_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "isochrone_upstream_request_duration_seconds",
		Help:    "Routing service latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"}), "isochrone_upstream_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	results, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isochrone_results_recorded_total",
		Help: "Isochrone polygons recorded into sessions.",
	}), "isochrone_results_recorded_total")
	if err != nil {
		return nil, err
	}

	exports, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isochrone_exports_total",
		Help: "Exported documents, labeled by format.",
	}, []string{"format"}), "isochrone_exports_total")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "isochrone_active_sessions",
		Help: "Current number of open sessions.",
	}), "isochrone_active_sessions")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		UpstreamRequests:  requests,
		UpstreamDurations: durations,
		ResultsRecorded:   results,
		Exports:           exports,
		ActiveSessions:    sessions,
	}, nil
}

// ObserveUpstream records one routing call. Safe on a nil collector.
func (c *Collector) ObserveUpstream(mode string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.UpstreamRequests.WithLabelValues(mode, outcome).Inc()
	c.UpstreamDurations.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// AddResults counts newly recorded results.
func (c *Collector) AddResults(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ResultsRecorded.Add(float64(n))
}

// IncExport counts one export of the given format.
func (c *Collector) IncExport(format string) {
	if c == nil {
		return
	}
	c.Exports.WithLabelValues(format).Inc()
}

// SetActiveSessions updates the open session gauge.
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
