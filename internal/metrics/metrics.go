package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

// Metrics exposes pipeline and record-log instrumentation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	recordsAppended  *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepweather_pipeline_runs_total",
			Help: "Night aggregation runs by path and outcome.",
		}, []string{"path", "outcome"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sleepweather_pipeline_duration_seconds",
			Help:    "Histogram of night aggregation durations by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		recordsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepweather_records_appended_total",
			Help: "Records appended to the log by source.",
		}, []string{"source"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sleepweather_breaker_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).",
		}, []string{"upstream"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.pipelineRuns,
		m.pipelineDuration,
		m.recordsAppended,
		m.breakerState,
	)
	return m
}

// ObservePipeline implements weather.RunObserver.
func (m *Metrics) ObservePipeline(path weather.Path, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.pipelineRuns.WithLabelValues(string(path), outcome).Inc()
	m.pipelineDuration.WithLabelValues(string(path)).Observe(elapsed.Seconds())
}

// RecordAppended implements sleeplog.AppendObserver.
func (m *Metrics) RecordAppended(source string) {
	if m == nil {
		return
	}
	m.recordsAppended.WithLabelValues(source).Inc()
}

// BreakerStateChanged tracks gobreaker transitions.
func (m *Metrics) BreakerStateChanged(upstream string, to gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(upstream).Set(v)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
