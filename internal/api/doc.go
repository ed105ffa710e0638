// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package api exposes the ranking engine over HTTP.

# Endpoints

	POST   /api/v1/rank                        rank a candidate list
	POST   /api/v1/feedback                    record interactions, re-optimize weights
	GET    /api/v1/cache/metrics               cache hit rate, size and latency
	GET    /api/v1/users/{userID}/preferences  sort habits and recommended weights
	DELETE /api/v1/users/{userID}              forget a user
	GET    /healthz                            liveness
	GET    /metrics                            Prometheus exposition

# Responses

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}}
	{"success": false, "error": {"code": "UNKNOWN_SORT_MODE", "message": "..."}, "meta": {...}}

An unknown sort mode, rejected weights and body validation failures return
400. A client that disconnects mid-request gets 499. A ranking that
degraded to the original order is still a 200 with data.degraded set.
*/
package api
