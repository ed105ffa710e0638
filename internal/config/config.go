// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package config

import (
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/catalogrank/internal/behavior"
	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/logging"
	"github.com/tomtom215/catalogrank/internal/popularity"
	"github.com/tomtom215/catalogrank/internal/ranking"
)

// Config is the complete service configuration. It is immutable after Load
// and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Cache      CacheConfig      `koanf:"cache"`
	Redis      RedisConfig      `koanf:"redis"`
	Ranking    ranking.Config   `koanf:"ranking"`
	Behavior   BehaviorConfig   `koanf:"behavior"`
	Popularity PopularityConfig `koanf:"popularity"`
}

// ServerConfig holds HTTP listener settings.
//
// Environment Variables:
//   - HTTP_HOST, HTTP_PORT
//   - HTTP_TIMEOUT: read/write timeout (default: 30s)
//   - CORS_ORIGINS: comma-separated allowed origins (default: *)
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: per-IP limit (default: 600 per 1m)
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxCandidates bounds the candidate list accepted by POST /rank.
	MaxCandidates int `koanf:"max_candidates"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP on /api/v1.
	// Zero disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// CacheConfig holds Cache Manager settings plus the eviction sweep interval.
type CacheConfig struct {
	Manager cache.Config `koanf:"manager"`

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// RedisConfig holds the shared cache tier connection.
//
// Environment Variables:
//   - REDIS_ENABLED, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	Tier cache.RedisTierConfig `koanf:"tier"`
}

// BehaviorConfig holds Behavior Tracker settings and its snapshot store.
type BehaviorConfig struct {
	Tracker behavior.Config `koanf:"tracker"`

	// StorePath is the Badger directory. Empty keeps state in memory only.
	StorePath string `koanf:"store_path"`

	// FlushInterval is how often changed users are written to the store.
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// PopularityConfig holds the interaction log and counter cache settings.
type PopularityConfig struct {
	Provider popularity.Config `koanf:"provider"`

	// DBPath is the DuckDB file. Empty uses an in-memory database.
	DBPath string `koanf:"db_path"`

	// RefreshInterval is how often recently requested assets are reloaded.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxCandidates:   1000,
			CORSOrigins:     []string{"*"},

			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
		},
		Logging: logging.DefaultConfig(),
		Cache: CacheConfig{
			Manager:         cache.DefaultConfig(),
			CleanupInterval: time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Tier: cache.DefaultRedisTierConfig(),
		},
		Ranking: ranking.DefaultConfig(),
		Behavior: BehaviorConfig{
			Tracker:       behavior.DefaultConfig(),
			StorePath:     "/data/behavior",
			FlushInterval: 30 * time.Second,
		},
		Popularity: PopularityConfig{
			Provider:        popularity.DefaultConfig(),
			DBPath:          "/data/interactions.duckdb",
			RefreshInterval: 5 * time.Minute,
		},
	}
}
