package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge
	tracesTotal    prometheus.Gauge

	traceWriteDuration  prometheus.Histogram
	searchDuration      prometheus.Histogram
	importDuration      prometheus.Histogram
	summarizeDuration   prometheus.Histogram
	contextBuildTraces  prometheus.Histogram
	sessionDeletedTotal prometheus.Counter

	turnTotal    *prometheus.CounterVec
	turnDuration prometheus.Histogram

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "recall_active_sessions",
					Help: "Current number of stored sessions.",
				},
			),
			tracesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "recall_traces_total",
					Help: "Total traces currently stored.",
				},
			),
			traceWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recall_trace_write_duration_seconds",
					Help:    "Trace write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recall_search_duration_seconds",
					Help:    "Full-text search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			importDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recall_import_duration_seconds",
					Help:    "Bulk import duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			summarizeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recall_summarize_duration_seconds",
					Help:    "Session summarization duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			contextBuildTraces: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recall_context_traces",
					Help:    "Number of traces injected per assembled context.",
					Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
				},
			),
			sessionDeletedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "recall_session_deleted_total",
					Help: "Total cascading session deletions.",
				},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recall_turn_total",
					Help: "Total orchestrator turns by status.",
				},
				[]string{"status"},
			),
			turnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recall_turn_duration_seconds",
					Help:    "End-to-end orchestrator turn duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recall_provider_call_total",
					Help: "Total provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recall_provider_call_duration_seconds",
					Help:    "Provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.tracesTotal,
			m.traceWriteDuration,
			m.searchDuration,
			m.importDuration,
			m.summarizeDuration,
			m.contextBuildTraces,
			m.sessionDeletedTotal,
			m.turnTotal,
			m.turnDuration,
			m.providerCallTotal,
			m.providerCallDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func SetTracesTotal(count int) {
	getMetrics().tracesTotal.Set(float64(count))
}

func RecordTraceWrite(duration time.Duration) {
	getMetrics().traceWriteDuration.Observe(duration.Seconds())
}

func RecordSearch(duration time.Duration) {
	getMetrics().searchDuration.Observe(duration.Seconds())
}

func RecordImport(duration time.Duration) {
	getMetrics().importDuration.Observe(duration.Seconds())
}

func RecordSummarize(duration time.Duration) {
	getMetrics().summarizeDuration.Observe(duration.Seconds())
}

func RecordContextBuild(traces int) {
	getMetrics().contextBuildTraces.Observe(float64(traces))
}

func RecordSessionDeleted() {
	getMetrics().sessionDeletedTotal.Inc()
}

func RecordTurn(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.turnTotal.WithLabelValues(status).Inc()
	m.turnDuration.Observe(duration.Seconds())
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerCallTotal.WithLabelValues(provider, status).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
