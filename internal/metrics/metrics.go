// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache tiers used as the "tier" label.
const (
	TierMemory  = "memory"
	TierRedis   = "redis"
	TierSimilar = "similar"
)

var (
	// Ranking Metrics
	RankRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_requests_total",
			Help: "Total number of ranking requests",
		},
		[]string{"sort_mode", "outcome"}, // outcome: "hit", "similar", "computed", "degraded", "invalid"
	)

	RankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_duration_seconds",
			Help:    "Duration of ranking requests in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .3, 1},
		},
		[]string{"sort_mode"},
	)

	RankCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranking_candidates",
			Help:    "Number of candidates per ranking request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	RankFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_fallbacks_total",
			Help: "Ranking requests that fell back to original order, or candidates scored with neutral defaults",
		},
		[]string{"reason"}, // "behavior_error", "internal_error", "scoring_panic"
	)

	// Feedback and Optimizer Metrics
	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_feedback_events_total",
			Help: "Total number of interaction events received as feedback",
		},
		[]string{"kind"},
	)

	WeightOptimizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_weight_optimizations_total",
			Help: "Weight optimizer runs by trigger",
		},
		[]string{"source"}, // "feedback", "direct"
	)

	// Cache Metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_cache_lookups_total",
			Help: "Cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // result: "hit", "miss", "error"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ranking_cache_entries",
			Help: "Current number of entries in the in-process cache tier",
		},
	)

	CacheMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ranking_cache_memory_bytes",
			Help: "Approximate bytes held by the in-process cache tier",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_cache_evictions_total",
			Help: "Entries removed from the in-process tier by the eviction sweep",
		},
	)

	// Popularity Metrics
	PopularityRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popularity_refreshes_total",
			Help: "Popularity counter refreshes from the interaction store",
		},
		[]string{"result"}, // "success", "error"
	)

	PopularityStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "popularity_store_duration_seconds",
			Help:    "Duration of interaction store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Behavior Metrics
	BehaviorTrackedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "behavior_tracked_users",
			Help: "Number of users with in-memory behavior state",
		},
	)

	BehaviorStoredUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "behavior_stored_users",
			Help: "Number of users with a persisted behavior snapshot at startup",
		},
	)

	BehaviorStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "behavior_store_errors_total",
			Help: "Behavior snapshot store failures",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordRank records one ranking request.
func RecordRank(sortMode, outcome string, candidates int, duration time.Duration) {
	RankRequests.WithLabelValues(sortMode, outcome).Inc()
	RankDuration.WithLabelValues(sortMode).Observe(duration.Seconds())
	RankCandidates.Observe(float64(candidates))
}

// RecordCacheLookup records a lookup against one cache tier.
func RecordCacheLookup(tier string, hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	CacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// BreakerStateValue maps a breaker state name to the gauge encoding.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
