// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package popularity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/interaction"
	"github.com/tomtom215/catalogrank/internal/metrics"
)

// Config configures the Provider.
type Config struct {
	// TTL bounds how stale cached counters may be.
	TTL time.Duration `koanf:"ttl"`

	// Capacity is the maximum number of cached assets.
	Capacity int `koanf:"capacity"`

	// RefreshWindow is how long an asset stays eligible for background
	// refresh after it was last requested.
	RefreshWindow time.Duration `koanf:"refresh_window"`
}

// DefaultConfig returns the default Provider configuration.
func DefaultConfig() Config {
	return Config{
		TTL:           10 * time.Minute,
		Capacity:      50000,
		RefreshWindow: 30 * time.Minute,
	}
}

// Provider serves popularity data for assets from a TTL cache in front of a
// Store. Store failures never reach callers: affected assets are reported as
// having no data and score DefaultScore.
type Provider struct {
	store  Store
	cache  *cache.Memory[*AssetPopularity]
	recent *cache.Memory[struct{}]
	logger zerolog.Logger
	now    func() time.Time
}

// NewProvider creates a Provider over store.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewProvider(store Store, cfg Config, logger zerolog.Logger) *Provider {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = def.RefreshWindow
	}

	return &Provider{
		store:  store,
		cache:  cache.NewMemory[*AssetPopularity](cfg.Capacity, cfg.TTL),
		recent: cache.NewMemory[struct{}](cfg.Capacity, cfg.RefreshWindow),
		logger: logger.With().Str("component", "popularity").Logger(),
		now:    time.Now,
	}
}

// Get returns popularity data for one asset, or nil when none exists.
func (p *Provider) Get(ctx context.Context, assetID string) *AssetPopularity {
	return p.GetBatch(ctx, []string{assetID})[assetID]
}

// GetBatch returns popularity data for assetIDs. Assets without data map to
// nil. Cached entries are served directly; the rest are loaded in one
// store query. Returned values are shared and must not be modified.
func (p *Provider) GetBatch(ctx context.Context, assetIDs []string) map[string]*AssetPopularity {
	out := make(map[string]*AssetPopularity, len(assetIDs))
	var missing []string

	for _, id := range assetIDs {
		if id == "" {
			continue
		}
		p.recent.Set(id, struct{}{})
		if v, ok := p.cache.Get(id); ok {
			out[id] = v
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	loaded, err := p.load(ctx, missing)
	if err != nil {
		p.logger.Warn().Err(err).Int("assets", len(missing)).Msg("Popularity store unavailable, using default scores")
		for _, id := range missing {
			out[id] = nil
		}
		return out
	}
	for _, id := range missing {
		out[id] = loaded[id]
	}
	return out
}

// Score returns the popularity score for data returned by GetBatch.
func (p *Provider) Score(ap *AssetPopularity) float64 {
	if ap == nil {
		return DefaultScore
	}
	return Score(ap, p.now())
}

// Record appends events to the store and drops the affected assets from the
// cache so the next read sees the new counts.
func (p *Provider) Record(ctx context.Context, events ...interaction.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.store.Append(ctx, events...); err != nil {
		return fmt.Errorf("append interactions: %w", err)
	}

	ids := make([]string, 0, len(events))
	for i := range events {
		ids = append(ids, events[i].Asset.ID)
	}
	p.Invalidate(ids...)
	return nil
}

// Invalidate drops cached data for assetIDs.
func (p *Provider) Invalidate(assetIDs ...string) {
	for _, id := range assetIDs {
		p.cache.Delete(id)
	}
}

// Refresh reloads counters for every asset requested within the refresh
// window and returns how many were refreshed. It is run by a background
// service.
func (p *Provider) Refresh(ctx context.Context) (int, error) {
	p.recent.EvictExpired()
	p.cache.EvictExpired()

	ids := p.recent.Keys()
	if len(ids) == 0 {
		return 0, nil
	}

	const batch = 500
	refreshed := 0
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := p.load(ctx, ids[start:end]); err != nil {
			metrics.PopularityRefreshes.WithLabelValues("error").Inc()
			return refreshed, err
		}
		refreshed += end - start
	}

	metrics.PopularityRefreshes.WithLabelValues("success").Inc()
	return refreshed, nil
}

// Close closes the underlying store.
func (p *Provider) Close() error {
	return p.store.Close()
}

// load queries the store for ids and caches the results, including the
// absence of data.
func (p *Provider) load(ctx context.Context, ids []string) (map[string]*AssetPopularity, error) {
	counters, err := p.store.Counters(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := p.now()
	for _, id := range ids {
		ap := counters[id]
		if ap != nil {
			ap.PopularityScore = Score(ap, now)
			ap.RefreshedAt = now
		}
		p.cache.Set(id, ap)
	}
	return counters, nil
}
