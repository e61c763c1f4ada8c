package optimizer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "optimizer",
			Name:      "cache_hits_total",
			Help:      "Responses served from the per-adapter response cache",
		},
		[]string{"provider"},
	)

	batchDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "optimizer",
			Name:      "batch_dispatch_seconds",
			Help:      "Wall time spent dispatching one batch to the backend",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	batchSizeObserved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "optimizer",
			Name:      "batch_requests",
			Help:      "Requests per dispatched batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		},
		[]string{"provider"},
	)

	batchSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "optimizer",
			Name:      "batch_size",
			Help:      "Current tuned max batch size",
		},
		[]string{"provider"},
	)

	workersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "optimizer",
			Name:      "workers",
			Help:      "Current dispatch worker count",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(cacheHitsTotal, batchDispatchDuration, batchSizeObserved, batchSizeGauge, workersGauge)
}

// stats aggregates request outcomes for the performance metrics surface.
// Counters are atomic; the recent-request window backing requests-per-second
// is a small mutex-guarded slice trimmed on every record.
type stats struct {
	total        atomic.Int64
	hits         atomic.Int64
	failures     atomic.Int64
	latencyNanos atomic.Int64

	recentMu sync.Mutex
	recent   []time.Time
}

func (s *stats) record(success, cacheHit bool, latency time.Duration) {
	s.total.Add(1)
	s.latencyNanos.Add(int64(latency))
	if cacheHit {
		s.hits.Add(1)
	}
	if !success {
		s.failures.Add(1)
	}
	now := time.Now()
	cutoff := now.Add(-time.Minute)
	s.recentMu.Lock()
	s.recent = append(s.recent, now)
	trim := 0
	for trim < len(s.recent) && s.recent[trim].Before(cutoff) {
		trim++
	}
	s.recent = s.recent[trim:]
	s.recentMu.Unlock()
}

// Metrics is this optimizer's contribution to GET /perf.
type Metrics struct {
	Total             int64
	Failures          int64
	RequestsPerSecond float64
	AverageLatencyMS  float64
	CacheHitRate      float64
}

// Metrics returns a point-in-time view of request throughput for this
// optimizer. Rates are computed over all recorded requests; RPS over the
// trailing minute.
func (o *Optimizer) Metrics() Metrics {
	total := o.stats.total.Load()
	m := Metrics{Total: total, Failures: o.stats.failures.Load()}
	if total > 0 {
		m.AverageLatencyMS = float64(o.stats.latencyNanos.Load()) / float64(total) / 1e6
		m.CacheHitRate = float64(o.stats.hits.Load()) / float64(total)
	}
	o.stats.recentMu.Lock()
	n := len(o.stats.recent)
	o.stats.recentMu.Unlock()
	m.RequestsPerSecond = float64(n) / 60.0
	return m
}
