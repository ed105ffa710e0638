// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package middleware provides chi-compatible HTTP middleware.

  - RequestID: X-Request-ID propagation into the logging context
  - PrometheusMetrics: request counters and latency by chi route pattern
  - AccessLog: one zerolog line per request

The API router installs them in that order, after chi's RealIP and
Recoverer:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.AccessLog(logger))
*/
package middleware
