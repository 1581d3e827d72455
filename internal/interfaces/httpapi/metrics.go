package httpapi

import (
	"errors"
	"net/http"
	"time"

	"provindex/internal/application"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus view of pipeline runs and ledger traffic. It observes the
// pipeline and the RPC client.
type Metrics struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	eventsTotal   prometheus.Counter
	eventsDropped *prometheus.CounterVec
	lastRun       prometheus.Gauge
	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provindex_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "provindex_run_duration_seconds",
			Help:    "Wall time of successful pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "provindex_events_total",
			Help: "Transfer events seen by successful runs.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provindex_events_dropped_total",
			Help: "Transfer events dropped during enrichment, by failing stage.",
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provindex_last_run_timestamp_seconds",
			Help: "Finish time of the last successful run.",
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provindex_rpc_requests_total",
			Help: "JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provindex_rpc_request_duration_seconds",
			Help:    "JSON-RPC round trip time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.runDuration,
		m.eventsTotal,
		m.eventsDropped,
		m.lastRun,
		m.rpcRequests,
		m.rpcDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OnEventDropped(stage string) {
	m.eventsDropped.WithLabelValues(stage).Inc()
}

func (m *Metrics) OnRunFinished(report application.RunReport) {
	m.runs.WithLabelValues("ok").Inc()
	m.eventsTotal.Add(float64(report.EventCount))
	m.runDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	m.lastRun.Set(float64(report.FinishedAt.Unix()))
}

func (m *Metrics) OnRunFailed(err error) {
	outcome := "error"
	switch {
	case errors.Is(err, application.ErrParticipantsUnavailable):
		outcome = "participants_unavailable"
	case errors.Is(err, application.ErrEventsUnavailable):
		outcome = "events_unavailable"
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRPC(method string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}
