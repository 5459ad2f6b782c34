package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "discharge"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// producer and the query service.
type Metrics struct {
	// Shared store metrics.
	StoreRequests *prometheus.CounterVec   // labels: backend={github,s3,local}, op={list,stat,fetch,put,delete}, outcome={success,error,conflict,not_found}
	StoreDuration *prometheus.HistogramVec // labels: backend, op

	// Upstream provider metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: source={cds,ecmwf}, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: source

	// Producer metrics.
	JobRuns         *prometheus.CounterVec   // labels: job={glofas,meteo}, outcome={success,error}
	JobDuration     *prometheus.HistogramVec // labels: job
	FilesPublished  *prometheus.CounterVec   // labels: kind={summary,clipped,meteo}
	FilesPruned     prometheus.Counter
	ProducerRunning prometheus.Gauge

	// Query metrics.
	QueryRequests  *prometheus.CounterVec // labels: outcome={ok,bad_request,no_snapshot,upstream_error,encode_error}
	QueryDuration  prometheus.Histogram
	LookupOutcomes *prometheus.CounterVec // labels: source={summary,threshold}, status={ok,absent,failed}
	SnapshotCache  *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StoreRequests,
		m.StoreDuration,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.JobRuns,
		m.JobDuration,
		m.FilesPublished,
		m.FilesPruned,
		m.ProducerRunning,
		m.QueryRequests,
		m.QueryDuration,
		m.LookupOutcomes,
		m.SnapshotCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Shared store operations by backend, operation and outcome.",
		}, []string{"backend", "op", "outcome"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_request_duration_seconds",
			Help:      "Shared store operation duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend", "op"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream data provider retrievals by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Duration of a complete upstream retrieval in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"source"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Producer job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a producer job run in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
		FilesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_published_total",
			Help:      "Files written to the shared store by kind.",
		}, []string{"kind"}),
		FilesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_pruned_total",
			Help:      "Files removed by the retention policy.",
		}),
		ProducerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "producer_running",
			Help:      "1 while the producer scheduler is active, 0 when shut down.",
		}),
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_requests_total",
			Help:      "Point queries by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of a point query including snapshot download.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LookupOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_outcomes_total",
			Help:      "Per-source lookup results by status.",
		}, []string{"source", "status"}),
		SnapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Decoded grid cache lookups by result.",
		}, []string{"result"}),
	}
}
