package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stats"
)

// Registry holds the Prometheus metrics for scan analytics
type Registry struct {
	reg *prometheus.Registry

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Latest scan gauges
	PassRate      prometheus.Gauge
	AvgConfidence prometheus.Gauge
	AvgEV         prometheus.Gauge
	TierSignals   *prometheus.GaugeVec
	Rejections    *prometheus.GaugeVec
	BiasSignals   *prometheus.GaugeVec

	// Ingest counters
	Ingests        prometheus.Counter
	UpstreamErrors *prometheus.CounterVec
	WSClients      prometheus.Gauge
}

// NewRegistry creates a registry with every metric registered on a private
// prometheus.Registry, so several instances can coexist in tests.
func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snipersight_step_duration_seconds",
				Help:    "Duration of each analytics step in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"step", "result"},
		),

		PassRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snipersight_scan_pass_rate_percent",
			Help: "Share of scanned symbols that produced a signal in the latest scan",
		}),

		AvgConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snipersight_scan_avg_confidence",
			Help: "Mean confidence score of signals in the latest scan",
		}),

		AvgEV: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snipersight_scan_avg_expected_value",
			Help: "Mean expected value in R multiples of signals in the latest scan",
		}),

		TierSignals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "snipersight_scan_signals",
				Help: "Signals in the latest scan by quality tier",
			},
			[]string{"tier"},
		),

		Rejections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "snipersight_scan_rejections",
				Help: "Rejected symbols in the latest scan by reason",
			},
			[]string{"reason"},
		),

		BiasSignals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "snipersight_scan_bias_signals",
				Help: "Signals in the latest scan by trend bias",
			},
			[]string{"bias"},
		),

		Ingests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipersight_scan_ingests_total",
			Help: "Total number of scan batches ingested",
		}),

		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipersight_upstream_errors_total",
				Help: "Total number of failed upstream scan requests by kind",
			},
			[]string{"kind"},
		),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snipersight_ws_clients",
			Help: "Connected websocket stream clients",
		}),
	}

	m.reg.MustRegister(
		m.StepDuration,
		m.PassRate,
		m.AvgConfidence,
		m.AvgEV,
		m.TierSignals,
		m.Rejections,
		m.BiasSignals,
		m.Ingests,
		m.UpstreamErrors,
		m.WSClients,
		collectors.NewGoCollector(),
	)

	return m
}

// Gatherer exposes the underlying registry for tests and custom exporters
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}

// Handler serves the registry in the Prometheus text format
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// StepTimer tracks timing for an analytics step
type StepTimer struct {
	registry *Registry
	step     string
	start    time.Time
}

// StartStepTimer starts timing a step
func (m *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{registry: m, step: step, start: time.Now()}
}

// Stop records the step duration with its result label
func (st *StepTimer) Stop(result string) {
	st.registry.StepDuration.WithLabelValues(st.step, result).Observe(time.Since(st.start).Seconds())
}

// Observe publishes the statistics of the most recent scan. Reason gauges are
// reset first so reasons absent from this scan drop to zero.
func (m *Registry) Observe(st stats.ScanStatistics) {
	m.Ingests.Inc()
	m.PassRate.Set(st.PassRate)
	m.AvgConfidence.Set(st.AvgConfidence)
	m.AvgEV.Set(st.AvgEV)

	for tier, n := range st.TierCounts {
		m.TierSignals.WithLabelValues(string(tier)).Set(float64(n))
	}

	m.Rejections.Reset()
	for reason, n := range st.RejectionCounts {
		m.Rejections.WithLabelValues(string(reason)).Set(float64(n))
	}

	m.BiasSignals.WithLabelValues("long").Set(float64(st.LongCount))
	m.BiasSignals.WithLabelValues("short").Set(float64(st.ShortCount))
	m.BiasSignals.WithLabelValues("neutral").Set(float64(st.NeutralCount))
}

// RecordUpstreamError counts one failed upstream request
func (m *Registry) RecordUpstreamError(kind string) {
	m.UpstreamErrors.WithLabelValues(kind).Inc()
}
