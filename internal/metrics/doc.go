// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package metrics defines the Prometheus collectors of the ranking service.

All collectors are registered on the default registry through promauto and
served by promhttp at /metrics.

# Families

Ranking:
  - ranking_requests_total{sort_mode, outcome}
  - ranking_duration_seconds{sort_mode}
  - ranking_candidates
  - ranking_fallbacks_total{reason}
  - ranking_feedback_events_total{kind}
  - ranking_weight_optimizations_total{source}

Cache:
  - ranking_cache_lookups_total{tier, result} where tier is memory, redis or similar
  - ranking_cache_entries, ranking_cache_memory_bytes
  - ranking_cache_evictions_total

Popularity and behavior:
  - popularity_refreshes_total{result}
  - popularity_store_duration_seconds{operation}
  - behavior_tracked_users
  - behavior_store_errors_total{operation}

Circuit breaker (Redis tier):
  - circuit_breaker_state{name}: 0 closed, 1 half-open, 2 open
  - circuit_breaker_requests_total{name, result}
  - circuit_breaker_state_transitions_total{name, from_state, to_state}

HTTP:
  - api_requests_total{method, endpoint, status}
  - api_request_duration_seconds{method, endpoint}

Endpoint labels use the chi route pattern, never the raw path, so user IDs
do not create new series.
*/
package metrics
