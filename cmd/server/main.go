// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/catalogrank/internal/api"
	"github.com/tomtom215/catalogrank/internal/behavior"
	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/config"
	"github.com/tomtom215/catalogrank/internal/logging"
	"github.com/tomtom215/catalogrank/internal/metrics"
	"github.com/tomtom215/catalogrank/internal/popularity"
	"github.com/tomtom215/catalogrank/internal/ranking"
	"github.com/tomtom215/catalogrank/internal/supervisor"
	"github.com/tomtom215/catalogrank/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.Logging)
	logger := logging.Logger()

	logger.Info().
		Str("addr", cfg.Server.Addr()).
		Str("duckdb_path", cfg.Popularity.DBPath).
		Str("behavior_path", cfg.Behavior.StorePath).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting catalogrank")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Popularity: DuckDB interaction counters behind a TTL cache.
	store, err := popularity.OpenDuckDB(ctx, cfg.Popularity.DBPath)
	if err != nil {
		return fmt.Errorf("open interaction store: %w", err)
	}
	provider := popularity.NewProvider(store, cfg.Popularity.Provider, logger)
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing interaction store")
		}
	}()

	// Behavior: per-user profiles persisted in Badger.
	profiles, err := behavior.OpenBadgerStore(cfg.Behavior.StorePath)
	if err != nil {
		return fmt.Errorf("open behavior store: %w", err)
	}
	if users, err := profiles.Users(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not count stored behavior profiles")
	} else {
		metrics.BehaviorStoredUsers.Set(float64(len(users)))
		logger.Info().Int("users", len(users)).Msg("Behavior store opened")
	}
	tracker, err := behavior.NewTracker(cfg.Behavior.Tracker, profiles, logger)
	if err != nil {
		_ = profiles.Close()
		return fmt.Errorf("create behavior tracker: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tracker.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("Error closing behavior tracker")
		}
	}()

	// Cache: memory tier, plus Redis when enabled.
	var remote *cache.RedisTier
	if cfg.Redis.Enabled {
		client := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		remote = cache.NewRedisTier(client, cfg.Redis.Tier, logger)
	}
	results, err := cache.NewManager(cfg.Cache.Manager, remote, logger)
	if err != nil {
		return fmt.Errorf("create cache manager: %w", err)
	}
	if err := results.Open(ctx); err != nil {
		return fmt.Errorf("open cache manager: %w", err)
	}
	defer func() {
		if err := results.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing cache manager")
		}
	}()

	engine, err := ranking.NewEngine(cfg.Ranking, tracker, provider, results, logger)
	if err != nil {
		return fmt.Errorf("create ranking engine: %w", err)
	}

	router := api.NewRouter(
		api.NewHandler(engine, cfg.Server.MaxCandidates, logger),
		api.RouterConfig{
			CORSOrigins:       cfg.Server.CORSOrigins,
			RateLimitRequests: cfg.Server.RateLimitRequests,
			RateLimitWindow:   cfg.Server.RateLimitWindow,
		},
		logger,
	)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddMaintenanceService(services.NewCacheEvictionService(results, engine, cfg.Cache.CleanupInterval, logger))
	tree.AddMaintenanceService(services.NewPopularityRefreshService(provider, cfg.Popularity.RefreshInterval, logger))
	tree.AddMaintenanceService(services.NewBehaviorFlushService(tracker, cfg.Behavior.FlushInterval, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, logger))

	logger.Info().Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for i := range report {
			logger.Warn().Str("service", report[i].Name).Msg("Service did not stop within the shutdown timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
