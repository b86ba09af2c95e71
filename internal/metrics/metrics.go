// v0
// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Breaker states as exported by the cb_state gauge.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// Metrics owns the collectors of the analysis service. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	comparisons       *prometheus.CounterVec
	similarity        prometheus.Histogram
	riskAssessments   *prometheus.CounterVec
	statsLoaded       prometheus.Gauge
	journalEntries    *prometheus.CounterVec
	ingestErrors      *prometheus.CounterVec
	cbState           *prometheus.GaugeVec
}

// New builds the collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_comparisons_total",
			Help: "Dataset comparisons served by resulting risk level.",
		}, []string{"risk_level"}),
		similarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_similarity_score",
			Help:    "Distribution of similarity scores returned by the comparator.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		riskAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_risk_assessments_total",
			Help: "Local risk computations by profile and level.",
		}, []string{"profile", "level"}),
		statsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_stats_loaded",
			Help: "1 when the dataset stats artifact is loaded, 0 otherwise.",
		}),
		journalEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_entries_total",
			Help: "Journal entries stored by kind and source.",
		}, []string{"kind", "source"}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_ingest_errors_total",
			Help: "Journal ingestion failures by reason.",
		}, []string{"reason"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.comparisons,
		m.similarity,
		m.riskAssessments,
		m.statsLoaded,
		m.journalEntries,
		m.ingestErrors,
		m.cbState,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Comparison(level string, score int) {
	if m == nil {
		return
	}
	m.comparisons.WithLabelValues(level).Inc()
	m.similarity.Observe(float64(score))
}

func (m *Metrics) RiskAssessment(profile, level string) {
	if m == nil {
		return
	}
	m.riskAssessments.WithLabelValues(profile, level).Inc()
}

func (m *Metrics) SetStatsLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.statsLoaded.Set(1)
		return
	}
	m.statsLoaded.Set(0)
}

func (m *Metrics) JournalEntry(kind, source string) {
	if m == nil {
		return
	}
	m.journalEntries.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) IngestError(reason string) {
	if m == nil {
		return
	}
	m.ingestErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetCircuitBreakerState(target string, state float64) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(state)
}
