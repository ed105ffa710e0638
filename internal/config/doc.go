// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package config loads the service configuration with koanf.

# Sources

Three layers are merged, later ones winning:

  - defaults from defaultConfig
  - an optional YAML file (CONFIG_PATH, ./config.yaml, /etc/catalogrank/config.yaml)
  - environment variables

Only environment variables listed in envMappings are read, so unrelated
variables never leak into the configuration.

# Example config.yaml

	server:
	  port: 3857
	  cors_origins: ["https://catalog.example.org"]
	  rate_limit_requests: 600
	  rate_limit_window: 1m
	logging:
	  level: debug
	  format: console
	cache:
	  cleanup_interval: 1m
	  manager:
	    base_ttl: 5m
	    capacity: 10000
	    similarity_threshold: 0.8
	redis:
	  enabled: true
	  addr: redis:6379
	  tier:
	    op_timeout: 50ms
	ranking:
	  default_weights:
	    relevance: 0.4
	    popularity: 0.3
	    recency: 0.2
	    personalization: 0.1
	behavior:
	  store_path: /data/behavior
	popularity:
	  db_path: /data/interactions.duckdb

Sections reuse the Config types of the packages they configure (cache,
behavior, popularity, ranking, logging) and Validate delegates to them.
*/
package config
