// Package observability provides Prometheus metrics and logger construction.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	CandlesLoaded   prometheus.Counter
	CandlesDropped  *prometheus.CounterVec
	SignalsEmitted  prometheus.Counter
	SignalsRejected *prometheus.CounterVec
	EntriesRejected *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec

	// Sweep metrics
	SweepCombinations *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "backtest_lab"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Run metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"mode"}),
		CandlesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "candles_loaded_total",
			Help:      "Total number of primary candles loaded",
		}),
		CandlesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "candles_dropped_total",
			Help:      "Total number of candles dropped during normalization by reason",
		}, []string{"reason"}),
		SignalsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_emitted_total",
			Help:      "Total number of confirmed signals",
		}),
		SignalsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_rejected_total",
			Help:      "Total number of crossings rejected by filter",
		}, []string{"reason"}),
		EntriesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "entries_rejected_total",
			Help:      "Total number of entries rejected by the simulator",
		}, []string{"reason"}),
		TradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_closed_total",
			Help:      "Total number of trades closed by exit reason",
		}, []string{"exit_reason"}),

		// Sweep metrics
		SweepCombinations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "combinations_total",
			Help:      "Total number of sweep combinations evaluated by status",
		}, []string{"status"}),

		// API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		// Health metrics
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
	}
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
	if status == "completed" {
		m.LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordCandles records loaded and dropped candle counts.
func (m *Metrics) RecordCandles(loaded int, dropped map[string]int) {
	if m == nil {
		return
	}
	m.CandlesLoaded.Add(float64(loaded))
	for reason, n := range dropped {
		m.CandlesDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordSignals records emitted signals and rejected crossings.
func (m *Metrics) RecordSignals(emitted int, rejected map[string]int) {
	if m == nil {
		return
	}
	m.SignalsEmitted.Add(float64(emitted))
	for reason, n := range rejected {
		m.SignalsRejected.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordEntryRejections records entries rejected by the simulator.
func (m *Metrics) RecordEntryRejections(rejected map[string]int) {
	if m == nil {
		return
	}
	for reason, n := range rejected {
		m.EntriesRejected.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordTradeClosed increments the closed trades counter.
func (m *Metrics) RecordTradeClosed(exitReason string) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(exitReason).Inc()
}

// RecordSweepCombination records one evaluated sweep combination.
func (m *Metrics) RecordSweepCombination(status string) {
	if m == nil {
		return
	}
	m.SweepCombinations.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records one served API request.
func (m *Metrics) RecordHTTPRequest(method, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
