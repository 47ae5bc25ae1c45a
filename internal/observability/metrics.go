package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ward_aqi"

// Metrics holds the Prometheus collectors for the reconciliation service.
type Metrics struct {
	// Upstream lookups.
	UpstreamRequests *prometheus.CounterVec   // labels: client={proxy,google}, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: client

	// Batch orchestration.
	BatchChunks prometheus.Counter

	// Reconciliation.
	WardsLoaded        prometheus.Gauge
	BaselineFailures   prometheus.Counter
	EnhancementPasses  *prometheus.CounterVec // labels: result={google,mixed,none,skipped}
	WardsEnhanced      prometheus.Counter
	LastEnhancementUTC prometheus.Gauge

	// Proxy endpoint.
	ProxyCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.BatchChunks,
		m.WardsLoaded,
		m.BaselineFailures,
		m.EnhancementPasses,
		m.WardsEnhanced,
		m.LastEnhancementUTC,
		m.ProxyCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Air-quality lookups by client and outcome.",
		}, []string{"client", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Air-quality lookup duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"client"}),
		BatchChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_chunks_total",
			Help:      "Chunks of concurrent lookups issued by the batch orchestrator.",
		}),
		WardsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wards_loaded",
			Help:      "Wards in the current collection.",
		}),
		BaselineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "baseline_failures_total",
			Help:      "Failed loads of the local ward dataset.",
		}),
		EnhancementPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancement_passes_total",
			Help:      "Upstream enhancement passes by resulting data source.",
		}, []string{"result"}),
		WardsEnhanced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wards_enhanced_total",
			Help:      "Ward records replaced with upstream readings.",
		}),
		LastEnhancementUTC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_enhancement_timestamp_seconds",
			Help:      "Unix time of the last pass that applied upstream readings.",
		}),
		ProxyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_cache_total",
			Help:      "Proxy response cache lookups by result.",
		}, []string{"result"}),
	}
}

// ObserveUpstream records one lookup. Safe on a nil receiver so one-shot
// tools can run without metrics.
func (m *Metrics) ObserveUpstream(client string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamRequests.WithLabelValues(client, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(client).Observe(elapsed.Seconds())
}

func (m *Metrics) IncBatchChunk() {
	if m == nil {
		return
	}
	m.BatchChunks.Inc()
}

func (m *Metrics) SetWardsLoaded(n int) {
	if m == nil {
		return
	}
	m.WardsLoaded.Set(float64(n))
}

func (m *Metrics) IncBaselineFailure() {
	if m == nil {
		return
	}
	m.BaselineFailures.Inc()
}

// ObservePass records an enhancement pass. applied is the number of ward
// records replaced; at is only used when applied > 0.
func (m *Metrics) ObservePass(result string, applied int, at time.Time) {
	if m == nil {
		return
	}
	m.EnhancementPasses.WithLabelValues(result).Inc()
	if applied > 0 {
		m.WardsEnhanced.Add(float64(applied))
		m.LastEnhancementUTC.Set(float64(at.Unix()))
	}
}

func (m *Metrics) ObserveProxyCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ProxyCache.WithLabelValues("hit").Inc()
		return
	}
	m.ProxyCache.WithLabelValues("miss").Inc()
}
