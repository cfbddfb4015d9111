package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the analysis engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ProviderRequests *prometheus.CounterVec
	ProviderLatency  prometheus.Histogram
	ProviderRetries  prometheus.Counter
	PairsProcessed   *prometheus.CounterVec
	Contradictions   prometheus.Counter
	Runs             *prometheus.CounterVec
	ActiveRuns       prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "req_analyzer_nli_requests_total",
				Help: "NLI provider HTTP requests by outcome",
			},
			[]string{"outcome"},
		),
		ProviderLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "req_analyzer_nli_request_duration_seconds",
				Help:    "NLI provider request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		ProviderRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "req_analyzer_nli_retries_total",
				Help: "NLI provider request retries",
			},
		),
		PairsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "req_analyzer_pairs_processed_total",
				Help: "Requirement pairs visited by outcome",
			},
			[]string{"outcome"},
		),
		Contradictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "req_analyzer_contradictions_total",
				Help: "Requirement pairs classified as contradictory",
			},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "req_analyzer_runs_total",
				Help: "Analysis runs by mode and final status",
			},
			[]string{"mode", "status"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "req_analyzer_active_runs",
				Help: "Background analysis runs currently executing",
			},
		),
	}

	m.registry.MustRegister(
		m.ProviderRequests,
		m.ProviderLatency,
		m.ProviderRetries,
		m.PairsProcessed,
		m.Contradictions,
		m.Runs,
		m.ActiveRuns,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProviderRequest records one provider HTTP attempt
func (m *Metrics) ObserveProviderRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(outcome).Inc()
	m.ProviderLatency.Observe(elapsed.Seconds())
}

// ObserveProviderRetry records a retry of a failed provider attempt
func (m *Metrics) ObserveProviderRetry() {
	if m == nil {
		return
	}
	m.ProviderRetries.Inc()
}

// ObservePair records the outcome of one visited pair
func (m *Metrics) ObservePair(outcome string, contradiction bool) {
	if m == nil {
		return
	}
	m.PairsProcessed.WithLabelValues(outcome).Inc()
	if contradiction {
		m.Contradictions.Inc()
	}
}

// RunStarted increments the active run gauge
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records a finished run
func (m *Metrics) RunFinished(mode, status string, background bool) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(mode, status).Inc()
	if background {
		m.ActiveRuns.Dec()
	}
}
