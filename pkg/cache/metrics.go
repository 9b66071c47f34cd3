package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by key
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapters_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"key"},
	)

	// CacheMisses tracks cache misses by key
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapters_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"key"},
	)

	// CacheInvalidations tracks successful key deletions after writes
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapters_cache_invalidations_total",
			Help: "Total number of cache invalidations",
		},
		[]string{"key"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapters_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)

	// BreakerState mirrors the Redis circuit breaker (0 closed, 1 half-open, 2 open)
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chapters_cache_breaker_state",
			Help: "Redis circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)
