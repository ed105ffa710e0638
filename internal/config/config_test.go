// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := defaultConfig()
	if cfg.Server.Port != want.Server.Port {
		t.Errorf("port = %d, want %d", cfg.Server.Port, want.Server.Port)
	}
	if cfg.Cache.Manager.BaseTTL != 5*time.Minute {
		t.Errorf("base TTL = %v, want 5m", cfg.Cache.Manager.BaseTTL)
	}
	if cfg.Cache.Manager.SimilarityThreshold != 0.8 {
		t.Errorf("similarity threshold = %v, want 0.8", cfg.Cache.Manager.SimilarityThreshold)
	}
	if !cfg.Ranking.DefaultWeights.IsDefault() {
		t.Errorf("default weights = %+v", cfg.Ranking.DefaultWeights)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
	if cfg.Logging.Output == nil {
		t.Error("logging output not set")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	writeConfigFile(t, `
server:
  port: 9000
logging:
  level: debug
cache:
  cleanup_interval: 2m
  manager:
    base_ttl: 1m
    capacity: 500
redis:
  enabled: true
  addr: redis-a:6379
ranking:
  default_weights:
    relevance: 0.5
    popularity: 0.2
    recency: 0.2
    personalization: 0.1
behavior:
  tracker:
    max_searches: 20
`)
	t.Setenv("REDIS_ADDR", "redis-b:6380")
	t.Setenv("CACHE_BASE_TTL", "90s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want file value 9000", cfg.Server.Port)
	}
	if cfg.Cache.CleanupInterval != 2*time.Minute || cfg.Cache.Manager.Capacity != 500 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.Manager.BaseTTL != 90*time.Second {
		t.Errorf("base TTL = %v, want env value 90s", cfg.Cache.Manager.BaseTTL)
	}
	if cfg.Redis.Addr != "redis-b:6380" || !cfg.Redis.Enabled {
		t.Errorf("redis = %+v, want enabled with env addr", cfg.Redis)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want env value warn", cfg.Logging.Level)
	}
	if cfg.Ranking.DefaultWeights.Relevance != 0.5 {
		t.Errorf("relevance weight = %v, want 0.5", cfg.Ranking.DefaultWeights.Relevance)
	}
	if cfg.Behavior.Tracker.MaxSearches != 20 {
		t.Errorf("max searches = %d, want 20", cfg.Behavior.Tracker.MaxSearches)
	}
	// Untouched nested defaults survive a partial file.
	if cfg.Behavior.Tracker.MaxAssetsPerUser != 500 {
		t.Errorf("max assets per user = %d, want default 500", cfg.Behavior.Tracker.MaxAssetsPerUser)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("cors origins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
	if cfg.Server.RateLimitRequests != 0 {
		t.Errorf("rate limit = %d, want 0", cfg.Server.RateLimitRequests)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	writeConfigFile(t, "server: [unclosed")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("HTTP_PORT", "70000")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "HTTP_PORT") {
		t.Fatalf("Load() error = %v, want HTTP_PORT validation error", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"REDIS_ADDR", "redis.addr"},
		{"CACHE_BASE_TTL", "cache.manager.base_ttl"},
		{"DUCKDB_PATH", "popularity.db_path"},
		{"log_level", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"no max candidates", func(c *Config) { c.Server.MaxCandidates = 0 }, "RANK_MAX_CANDIDATES"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitRequests = -1 }, "RATE_LIMIT_REQUESTS"},
		{"rate limit without window", func(c *Config) { c.Server.RateLimitWindow = 0 }, "RATE_LIMIT_WINDOW"},
		{"rate limit disabled without window", func(c *Config) { c.Server.RateLimitRequests = 0; c.Server.RateLimitWindow = 0 }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging"},
		{"zero cache ttl", func(c *Config) { c.Cache.Manager.BaseTTL = 0 }, "cache"},
		{"zero cleanup", func(c *Config) { c.Cache.CleanupInterval = 0 }, "CACHE_CLEANUP_INTERVAL"},
		{"redis disabled without addr", func(c *Config) { c.Redis.Addr = "" }, ""},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "REDIS_ADDR"},
		{"negative weight", func(c *Config) { c.Ranking.DefaultWeights.Recency = -1 }, "ranking"},
		{"zero searches", func(c *Config) { c.Behavior.Tracker.MaxSearches = 0 }, "behavior"},
		{"zero flush", func(c *Config) { c.Behavior.FlushInterval = 0 }, "BEHAVIOR_FLUSH_INTERVAL"},
		{"zero popularity ttl", func(c *Config) { c.Popularity.Provider.TTL = 0 }, "POPULARITY_TTL"},
		{"zero refresh", func(c *Config) { c.Popularity.RefreshInterval = 0 }, "POPULARITY_REFRESH_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	if got := (ServerConfig{Host: "127.0.0.1", Port: 8080}).Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
}
