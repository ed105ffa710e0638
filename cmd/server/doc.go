// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package main is the catalogrank server.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging
//  3. Popularity store (DuckDB) and provider
//  4. Behavior store (Badger) and tracker
//  5. Cache manager, with the Redis tier when REDIS_ENABLED=true
//  6. Ranking engine and HTTP router
//  7. Supervisor tree: cache eviction, popularity refresh, behavior flush
//     and the HTTP server
//
// SIGINT or SIGTERM stops the tree. The HTTP server drains in-flight
// requests, the behavior flush service writes pending profiles, and the
// stores are closed in reverse order.
//
// Example:
//
//	export DUCKDB_PATH=./data/interactions.duckdb
//	export BEHAVIOR_STORE_PATH=./data/behavior
//	export LOG_FORMAT=console
//	./catalogrank
package main
