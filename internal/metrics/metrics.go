package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intercepted fetches by where the response came from
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_fetch_requests_total",
			Help: "Total number of intercepted fetches",
		},
		[]string{"source"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"level"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// Network responses that were returned but not stored
	CacheSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_skips_total",
			Help: "Total number of network responses not eligible for caching",
		},
		[]string{"reason"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_writes_total",
			Help: "Total number of cache writes",
		},
		[]string{"result"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"level", "kind"},
	)

	NetworkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_network_errors_total",
			Help: "Total number of swallowed network failures",
		},
	)

	LifecycleEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_lifecycle_events_total",
			Help: "Install and activate outcomes",
		},
		[]string{"phase", "result"},
	)

	GenerationsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_generations_deleted_total",
			Help: "Stale generations removed",
		},
		[]string{"result"},
	)

	Generations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_cache_generations",
			Help: "Number of stored cache generations",
		},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offline_cache_fetch_duration_seconds",
			Help:    "Duration of intercepted fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// L1 capacity metrics only (L1 is in-memory)
	CacheCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offline_cache_capacity_bytes",
			Help: "L1 cache capacity in bytes",
		},
		[]string{"level"},
	)

	CacheUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offline_cache_used_bytes",
			Help: "L1 cache used space in bytes",
		},
		[]string{"level"},
	)

	CacheKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offline_cache_keys",
			Help: "Number of keys per cache level",
		},
		[]string{"level"},
	)
)

// RecordFetch records an intercepted fetch and its duration
func RecordFetch(source string, duration time.Duration) {
	FetchRequests.WithLabelValues(source).Inc()
	FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func RecordCacheHit(level string) {
	CacheHits.WithLabelValues(level).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// RecordCacheSkip records a response that was not stored
func RecordCacheSkip(reason string) {
	CacheSkips.WithLabelValues(reason).Inc()
}

// RecordCacheWrite records a cache write outcome
func RecordCacheWrite(ok bool) {
	CacheWrites.WithLabelValues(result(ok)).Inc()
}

// RecordCacheError records a storage error with level and kind
func RecordCacheError(level, kind string) {
	CacheErrors.WithLabelValues(level, kind).Inc()
}

// RecordNetworkError records a swallowed network failure
func RecordNetworkError() {
	NetworkErrors.Inc()
}

// RecordLifecycle records an install or activate outcome
func RecordLifecycle(phase string, ok bool) {
	LifecycleEvents.WithLabelValues(phase, result(ok)).Inc()
}

// RecordGenerationDeleted records a stale generation removal
func RecordGenerationDeleted(ok bool) {
	GenerationsDeleted.WithLabelValues(result(ok)).Inc()
}

// UpdateGenerations sets the number of stored generations
func UpdateGenerations(count int) {
	Generations.Set(float64(count))
}

// UpdateL1CacheCapacity updates L1 cache capacity metrics only
func UpdateL1CacheCapacity(capacity, used int64) {
	CacheCapacity.WithLabelValues("l1").Set(float64(capacity))
	CacheUsed.WithLabelValues("l1").Set(float64(used))
}

// UpdateCacheKeys updates the number of keys in a cache level
func UpdateCacheKeys(level string, count int64) {
	CacheKeys.WithLabelValues(level).Set(float64(count))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
