// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/catalogrank/config.yaml",
	"/etc/catalogrank/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"rank_max_candidates":   "server.max_candidates",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",

	"log_level":     "logging.level",
	"log_format":    "logging.format",
	"log_caller":    "logging.caller",
	"log_timestamp": "logging.timestamp",

	"cache_base_ttl":             "cache.manager.base_ttl",
	"cache_capacity":             "cache.manager.capacity",
	"cache_similarity_threshold": "cache.manager.similarity_threshold",
	"cache_popular_query_count":  "cache.manager.popular_query_count",
	"cache_cleanup_interval":     "cache.cleanup_interval",

	"redis_enabled":           "redis.enabled",
	"redis_addr":              "redis.addr",
	"redis_password":          "redis.password",
	"redis_db":                "redis.db",
	"redis_prefix":            "redis.tier.prefix",
	"redis_op_timeout":        "redis.tier.op_timeout",
	"redis_breaker_threshold": "redis.tier.breaker_failure_threshold",
	"redis_breaker_timeout":   "redis.tier.breaker_timeout",

	"ranking_relevance_norm":     "ranking.relevance_norm",
	"ranking_optimizer_ttl":      "ranking.optimizer_ttl",
	"ranking_optimizer_capacity": "ranking.optimizer_capacity",

	"behavior_store_path":     "behavior.store_path",
	"behavior_flush_interval": "behavior.flush_interval",
	"behavior_idle_ttl":       "behavior.tracker.idle_ttl",
	"behavior_max_searches":   "behavior.tracker.max_searches",

	"duckdb_path":                 "popularity.db_path",
	"popularity_ttl":              "popularity.provider.ttl",
	"popularity_capacity":         "popularity.provider.capacity",
	"popularity_refresh_interval": "popularity.refresh_interval",
}

// Load reads configuration in three layers, each overriding the previous:
//  1. Built-in defaults
//  2. Config file (CONFIG_PATH, or the first of DefaultConfigPaths found)
//  3. Environment variables listed in envMappings
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Logging.Output = os.Stderr

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// sliceConfigPaths are the keys whose environment values are comma-separated.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated strings for sliceConfigPaths.
// Values loaded from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
