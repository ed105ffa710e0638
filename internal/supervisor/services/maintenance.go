// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package services adapts catalogrank components to suture.Service.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// taskTimeout bounds one run of a periodic task.
const taskTimeout = 2 * time.Minute

// CacheEvicter sweeps expired cache entries.
type CacheEvicter interface {
	EvictExpired() int
}

// OptimizerPruner drops expired optimizer state.
type OptimizerPruner interface {
	Prune() int
}

// PopularityRefresher reloads popularity counters from the interaction log.
type PopularityRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// BehaviorFlusher persists changed per-user behavior state.
type BehaviorFlusher interface {
	Flush(ctx context.Context) (int, error)
}

// periodic runs task every interval until ctx is canceled. Task errors are
// logged and retried on the next tick; they never stop the loop.
type periodic struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   zerolog.Logger
}

func (p *periodic) Serve(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("service starting")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("service shutting down")
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *periodic) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	if err := p.task(runCtx); err != nil && ctx.Err() == nil {
		p.logger.Warn().Err(err).Msg("scheduled run failed")
	}
}

func (p *periodic) String() string {
	return p.name
}

//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func newPeriodic(name string, interval, fallback time.Duration, logger zerolog.Logger, task func(context.Context) error) *periodic {
	if interval <= 0 {
		interval = fallback
	}
	return &periodic{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.With().Str("service", name).Logger(),
	}
}

// CacheEvictionService sweeps expired cache entries and prunes optimizer
// memo and query statistics.
type CacheEvictionService struct {
	*periodic
}

// NewCacheEvictionService creates the sweep service. pruner may be nil.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewCacheEvictionService(cache CacheEvicter, pruner OptimizerPruner, interval time.Duration, logger zerolog.Logger) *CacheEvictionService {
	s := &CacheEvictionService{}
	s.periodic = newPeriodic("cache-eviction", interval, time.Minute, logger, func(context.Context) error {
		evicted := cache.EvictExpired()
		pruned := 0
		if pruner != nil {
			pruned = pruner.Prune()
		}
		if evicted > 0 || pruned > 0 {
			s.logger.Debug().Int("evicted", evicted).Int("pruned", pruned).Msg("cache sweep complete")
		}
		return nil
	})
	return s
}

// PopularityRefreshService reloads counters for recently requested assets
// so the Provider's cache does not serve values older than its TTL under
// steady traffic.
type PopularityRefreshService struct {
	*periodic
}

// NewPopularityRefreshService creates the refresh service.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewPopularityRefreshService(provider PopularityRefresher, interval time.Duration, logger zerolog.Logger) *PopularityRefreshService {
	s := &PopularityRefreshService{}
	s.periodic = newPeriodic("popularity-refresh", interval, 5*time.Minute, logger, func(ctx context.Context) error {
		start := time.Now()
		n, err := provider.Refresh(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Debug().Int("assets", n).Dur("duration", time.Since(start)).Msg("popularity refreshed")
		}
		return nil
	})
	return s
}

// BehaviorFlushService writes changed behavior state to the snapshot store.
// It flushes once more on shutdown.
type BehaviorFlushService struct {
	*periodic
	flusher BehaviorFlusher
}

// NewBehaviorFlushService creates the flush service.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewBehaviorFlushService(flusher BehaviorFlusher, interval time.Duration, logger zerolog.Logger) *BehaviorFlushService {
	s := &BehaviorFlushService{flusher: flusher}
	s.periodic = newPeriodic("behavior-flush", interval, 30*time.Second, logger, func(ctx context.Context) error {
		_, err := flusher.Flush(ctx)
		return err
	})
	return s
}

// Serve runs the periodic flush and a final flush after ctx is canceled.
func (s *BehaviorFlushService) Serve(ctx context.Context) error {
	err := s.periodic.Serve(ctx)

	finalCtx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if n, ferr := s.flusher.Flush(finalCtx); ferr != nil {
		s.logger.Error().Err(ferr).Msg("final behavior flush failed")
	} else if n > 0 {
		s.logger.Info().Int("users", n).Msg("final behavior flush complete")
	}
	return err
}
