// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package config

import (
	"fmt"

	"github.com/tomtom215/catalogrank/internal/validation"
)

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := validation.ValidateStruct(c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	if err := c.validateBehavior(); err != nil {
		return err
	}
	return c.validatePopularity()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.MaxCandidates < 1 {
		return fmt.Errorf("RANK_MAX_CANDIDATES must be at least 1, got %d", c.Server.MaxCandidates)
	}
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative, got %d", c.Server.RateLimitRequests)
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Server.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateCache() error {
	if err := c.Cache.Manager.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL must be positive, got %v", c.Cache.CleanupInterval)
	}
	return nil
}

// validateRedis only checks the shared tier when it is enabled.
func (c *Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("REDIS_DB must be non-negative, got %d", c.Redis.DB)
	}
	if c.Redis.Tier.OpTimeout <= 0 {
		return fmt.Errorf("REDIS_OP_TIMEOUT must be positive, got %v", c.Redis.Tier.OpTimeout)
	}
	return nil
}

func (c *Config) validateBehavior() error {
	if err := c.Behavior.Tracker.Validate(); err != nil {
		return fmt.Errorf("behavior: %w", err)
	}
	if c.Behavior.FlushInterval <= 0 {
		return fmt.Errorf("BEHAVIOR_FLUSH_INTERVAL must be positive, got %v", c.Behavior.FlushInterval)
	}
	return nil
}

func (c *Config) validatePopularity() error {
	p := c.Popularity
	if p.Provider.TTL <= 0 {
		return fmt.Errorf("POPULARITY_TTL must be positive, got %v", p.Provider.TTL)
	}
	if p.Provider.Capacity <= 0 {
		return fmt.Errorf("POPULARITY_CAPACITY must be positive, got %d", p.Provider.Capacity)
	}
	if p.RefreshInterval <= 0 {
		return fmt.Errorf("POPULARITY_REFRESH_INTERVAL must be positive, got %v", p.RefreshInterval)
	}
	return nil
}
