// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/catalogrank/internal/logging"
	"github.com/tomtom215/catalogrank/internal/metrics"
)

var (
	// ErrMiss is returned when no tier holds the requested key.
	ErrMiss = errors.New("cache miss")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("cache manager closed")
)

// Source reports where a cached value came from.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceRemote   Source = "redis"
	SourceSimilar  Source = "similar"
	SourceComputed Source = "computed"
)

// Entry is one cached ranking result. Once stored it is never modified; a
// re-rank replaces it under the same key.
type Entry struct {
	Key       string        `json:"key"`
	Query     string        `json:"query"`
	SortMode  string        `json:"sort_mode"`
	UserID    string        `json:"user_id,omitempty"`
	Value     []byte        `json:"value"`
	ItemCount int           `json:"item_count"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// ExpiresAt returns when the entry stops being valid.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Value = bytes.Clone(e.Value)
	return &c
}

func entrySize(e *Entry) int {
	return len(e.Value) + len(e.Key) + len(e.Query) + len(e.SortMode) + len(e.UserID) + 64
}

// Request identifies a ranking lookup.
type Request struct {
	Key       string
	Query     string
	SortMode  string
	UserID    string
	ItemCount int
}

// ComputeFunc produces a fresh value and its item count on a miss.
type ComputeFunc func(ctx context.Context) (value []byte, itemCount int, err error)

// Config holds Cache Manager settings.
type Config struct {
	BaseTTL             time.Duration  `koanf:"base_ttl"`
	Capacity            int            `koanf:"capacity"`
	SimilarityThreshold float64        `koanf:"similarity_threshold"`
	CountTolerance      CountTolerance `koanf:"count_tolerance"`
	RecentKeys          int            `koanf:"recent_keys"`
	PopularQueryCount   int64          `koanf:"popular_query_count"`
	QueryWindow         time.Duration  `koanf:"query_window"`
	MaxTrackedQueries   int            `koanf:"max_tracked_queries"`
}

// DefaultConfig returns the default Cache Manager configuration.
func DefaultConfig() Config {
	return Config{
		BaseTTL:             5 * time.Minute,
		Capacity:            10000,
		SimilarityThreshold: 0.8,
		CountTolerance:      CountTolerance{Ratio: 0.1, Absolute: 3},
		RecentKeys:          50,
		PopularQueryCount:   10,
		QueryWindow:         time.Hour,
		MaxTrackedQueries:   50000,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.BaseTTL <= 0 {
		return fmt.Errorf("base TTL must be positive, got %v", c.BaseTTL)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0, 1], got %v", c.SimilarityThreshold)
	}
	if c.CountTolerance.Ratio < 0 || c.CountTolerance.Absolute < 0 {
		return fmt.Errorf("count tolerance must be non-negative, got %+v", c.CountTolerance)
	}
	if c.RecentKeys <= 0 {
		return fmt.Errorf("recent key window must be positive, got %d", c.RecentKeys)
	}
	return nil
}

// PerformanceMetrics summarizes cache effectiveness.
type PerformanceMetrics struct {
	HitRate           float64 `json:"hit_rate"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
	MemoryUsageBytes  int64   `json:"memory_usage_bytes"`
	Entries           int     `json:"entries"`
	Hits              int64   `json:"hits"`
	Misses            int64   `json:"misses"`
	SimilarHits       int64   `json:"similar_hits"`
	RemoteHits        int64   `json:"remote_hits"`
	Evictions         int64   `json:"evictions"`
	TrackedQueries    int     `json:"tracked_queries"`
	RemoteEnabled     bool    `json:"remote_enabled"`
	BreakerState      string  `json:"breaker_state,omitempty"`
}

// Manager is the multi-tier ranking cache: an in-process memory tier in
// front of an optional Redis tier, with a similarity fallback over recently
// stored keys and compute-once deduplication per key.
type Manager struct {
	cfg    Config
	memory *Memory[*Entry]
	remote *RedisTier
	index  *SimilarityIndex
	freq   *FrequencyTracker
	policy TTLPolicy
	group  singleflight.Group
	logger zerolog.Logger
	now    func() time.Time

	open atomic.Bool

	hits        atomic.Int64
	misses      atomic.Int64
	similarHits atomic.Int64
	remoteHits  atomic.Int64
	lookups     atomic.Int64
	lookupNanos atomic.Int64
}

// NewManager creates a Manager. remote may be nil to run memory-only.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewManager(cfg Config, remote *RedisTier, logger zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if cfg.QueryWindow <= 0 {
		cfg.QueryWindow = time.Hour
	}

	m := &Manager{
		cfg:    cfg,
		remote: remote,
		index:  NewSimilarityIndex(cfg.RecentKeys, 0),
		freq:   NewFrequencyTracker(cfg.QueryWindow, 12, cfg.MaxTrackedQueries),
		policy: DefaultTTLPolicy(cfg.BaseTTL),
		logger: logger.With().Str("component", "cache-manager").Logger(),
		now:    time.Now,
	}
	if cfg.PopularQueryCount > 0 {
		m.policy.PopularThreshold = cfg.PopularQueryCount
	}
	m.memory = NewMemory[*Entry](cfg.Capacity, cfg.BaseTTL, WithSizeFunc[*Entry](entrySize))
	return m, nil
}

// Open makes the manager ready for use. An unreachable Redis tier is logged
// and left to its circuit breaker; it does not fail Open.
func (m *Manager) Open(ctx context.Context) error {
	if m.remote != nil {
		if err := m.remote.Ping(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Redis tier unreachable at startup, continuing memory-only until it recovers")
		}
	}
	m.open.Store(true)
	m.logger.Info().
		Dur("base_ttl", m.cfg.BaseTTL).
		Int("capacity", m.cfg.Capacity).
		Bool("redis", m.remote != nil).
		Msg("Cache manager opened")
	return nil
}

// Close stops accepting writes, drops the memory tier and closes the Redis client.
func (m *Manager) Close() error {
	if !m.open.Swap(false) {
		return nil
	}
	m.memory.Clear()
	if m.remote != nil {
		if err := m.remote.Close(); err != nil {
			return fmt.Errorf("close redis tier: %w", err)
		}
	}
	m.logger.Info().Msg("Cache manager closed")
	return nil
}

// Get returns the entry stored under key from the memory tier or, failing
// that, the Redis tier. A Redis hit is copied into the memory tier.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, error) {
	e, _, err := m.get(ctx, key)
	return e, err
}

func (m *Manager) get(ctx context.Context, key string) (*Entry, Source, error) {
	if !m.open.Load() {
		return nil, "", ErrClosed
	}

	if e, ok := m.memory.Get(key); ok {
		metrics.RecordCacheLookup(metrics.TierMemory, true, nil)
		return e.clone(), SourceMemory, nil
	}
	metrics.RecordCacheLookup(metrics.TierMemory, false, nil)

	if m.remote == nil {
		return nil, "", ErrMiss
	}

	data, err := m.remote.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			metrics.RecordCacheLookup(metrics.TierRedis, false, nil)
		} else {
			metrics.RecordCacheLookup(metrics.TierRedis, false, err)
			m.logger.Debug().Err(err).Str("key", key).Msg("Redis tier lookup failed, treating as miss")
		}
		return nil, "", ErrMiss
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		metrics.RecordCacheLookup(metrics.TierRedis, false, err)
		m.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable Redis entry")
		return nil, "", ErrMiss
	}

	remaining := e.ExpiresAt().Sub(m.now())
	if remaining <= 0 {
		metrics.RecordCacheLookup(metrics.TierRedis, false, nil)
		return nil, "", ErrMiss
	}

	metrics.RecordCacheLookup(metrics.TierRedis, true, nil)
	m.remoteHits.Add(1)

	m.memory.SetWithTTL(key, e.clone(), remaining)
	m.index.Remember(Scope(e.SortMode, e.UserID), key, e.Query, e.ItemCount)
	return &e, SourceRemote, nil
}

// Set stores e in every tier. The value is copied so later changes by the
// caller are not observed by readers. Redis failures are logged, not returned.
func (m *Manager) Set(ctx context.Context, e Entry) error {
	if !m.open.Load() {
		return ErrClosed
	}
	if e.Key == "" {
		return errors.New("cache entry key is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	if e.TTL <= 0 {
		e.TTL = m.cfg.BaseTTL
	}

	stored := e.clone()
	m.memory.SetWithTTL(e.Key, stored, e.TTL)
	m.index.Remember(Scope(e.SortMode, e.UserID), e.Key, e.Query, e.ItemCount)

	if m.remote != nil {
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		// User-scoped keys are tracked before they are written so a reset
		// on any instance can find them.
		if e.UserID != "" {
			if err := m.remote.TrackUserKey(ctx, e.UserID, e.Key, e.TTL); err != nil {
				m.logger.Debug().Err(err).Str("key", e.Key).Msg("Redis tier write skipped, user key not tracked")
				return nil
			}
		}
		if err := m.remote.Set(ctx, e.Key, data, e.TTL); err != nil {
			m.logger.Debug().Err(err).Str("key", e.Key).Msg("Redis tier write skipped")
		}
	}
	return nil
}

// GetSimilar looks for a recently stored entry in the same sort mode and user
// scope whose query is similar enough and whose item count is close to
// req.ItemCount. Index entries whose value has already left the memory tier
// are dropped as they are found.
func (m *Manager) GetSimilar(_ context.Context, req Request) (*Entry, Match, error) {
	if !m.open.Load() {
		return nil, Match{}, ErrClosed
	}

	matches := m.index.Similar(Scope(req.SortMode, req.UserID), req.Query, req.Key,
		req.ItemCount, m.cfg.SimilarityThreshold, m.cfg.CountTolerance)

	for _, match := range matches {
		e, ok := m.memory.Get(match.Key)
		if !ok {
			m.index.Forget(match.Key)
			continue
		}
		metrics.RecordCacheLookup(metrics.TierSimilar, true, nil)
		return e.clone(), match, nil
	}

	metrics.RecordCacheLookup(metrics.TierSimilar, false, nil)
	return nil, Match{}, ErrMiss
}

// Lookup tries the exact key and then the similarity fallback.
func (m *Manager) Lookup(ctx context.Context, req Request) (*Entry, Source, error) {
	start := m.now()
	defer func() {
		m.lookups.Add(1)
		m.lookupNanos.Add(int64(m.now().Sub(start)))
	}()

	e, source, err := m.get(ctx, req.Key)
	if err == nil {
		m.hits.Add(1)
		return e, source, nil
	}
	if errors.Is(err, ErrClosed) {
		return nil, "", err
	}

	e, match, err := m.GetSimilar(ctx, req)
	if err == nil {
		m.hits.Add(1)
		m.similarHits.Add(1)
		m.logger.Debug().
			Str("query", logging.SanitizeQuery(req.Query)).
			Str("reused_query", match.Query).
			Float64("similarity", match.Similarity).
			Msg("Reusing similar cached ranking")
		return e, SourceSimilar, nil
	}

	m.misses.Add(1)
	return nil, "", err
}

// GetOrCompute returns a cached value for req or computes, stores and returns
// a fresh one. Concurrent callers for the same key share one computation. A
// caller whose context is cancelled stops waiting; the computation itself
// continues for the others.
func (m *Manager) GetOrCompute(ctx context.Context, req Request, compute ComputeFunc) (*Entry, Source, error) {
	queryCount := m.freq.Observe(NormalizeQuery(req.Query))

	e, source, err := m.Lookup(ctx, req)
	if err == nil {
		return e, source, nil
	}
	if errors.Is(err, ErrClosed) {
		return nil, "", err
	}

	// The shared computation outlives any single waiter.
	bg := context.WithoutCancel(ctx)

	ch := m.group.DoChan(req.Key, func() (interface{}, error) {
		// Another caller may have stored the key while this one waited.
		if cached, ok := m.memory.Get(req.Key); ok {
			return cached.clone(), nil
		}

		value, itemCount, err := compute(bg)
		if err != nil {
			return nil, err
		}

		entry := Entry{
			Key:       req.Key,
			Query:     req.Query,
			SortMode:  req.SortMode,
			UserID:    req.UserID,
			Value:     value,
			ItemCount: itemCount,
			CreatedAt: m.now(),
			TTL:       m.policy.TTL(req.SortMode, req.UserID != "", queryCount),
		}
		if err := m.Set(bg, entry); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn().Err(err).Str("key", req.Key).Msg("Failed to store computed ranking")
		}
		return &entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		return res.Val.(*Entry).clone(), SourceComputed, nil
	}
}

// Delete removes key from every tier.
func (m *Manager) Delete(ctx context.Context, key string) {
	m.memory.Delete(key)
	m.index.Forget(key)
	if m.remote != nil {
		if err := m.remote.Delete(ctx, key); err != nil {
			m.logger.Debug().Err(err).Str("key", key).Msg("Redis tier delete skipped")
		}
	}
}

// InvalidateUser drops every entry scoped to userID from both tiers,
// including Redis entries written by other instances or already evicted from
// memory. It returns the larger of the two tiers' removal counts.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}

	var keys []string
	removed := m.memory.DeleteFunc(func(key string, e *Entry) bool {
		if e.UserID == userID {
			keys = append(keys, key)
			return true
		}
		return false
	})
	m.index.ForgetUser(userID)

	if m.remote != nil {
		n, err := m.remote.InvalidateUser(ctx, userID, keys...)
		if err != nil {
			m.logger.Warn().Err(err).Str("user_id", logging.SanitizeUserID(userID)).Msg("Redis tier invalidation failed")
		}
		removed = max(removed, n)
	}
	return removed
}

// EvictExpired sweeps expired memory-tier entries and idle query counters.
// It is called periodically by a supervised background service.
func (m *Manager) EvictExpired() int {
	removed := m.memory.EvictExpired()
	m.freq.Prune()

	metrics.CacheEvictions.Add(float64(removed))
	metrics.CacheEntries.Set(float64(m.memory.Len()))
	metrics.CacheMemoryBytes.Set(float64(m.memory.Bytes()))
	return removed
}

// QueryCount returns how often query was looked up in the frequency window.
func (m *Manager) QueryCount(query string) int64 {
	return m.freq.Count(NormalizeQuery(query))
}

// Metrics returns a snapshot of cache effectiveness.
func (m *Manager) Metrics() PerformanceMetrics {
	hits := m.hits.Load()
	misses := m.misses.Load()
	stats := m.memory.Stats()

	pm := PerformanceMetrics{
		MemoryUsageBytes: stats.Bytes,
		Entries:          stats.Entries,
		Hits:             hits,
		Misses:           misses,
		SimilarHits:      m.similarHits.Load(),
		RemoteHits:       m.remoteHits.Load(),
		Evictions:        stats.Evictions,
		TrackedQueries:   m.freq.Len(),
		RemoteEnabled:    m.remote != nil,
	}
	if total := hits + misses; total > 0 {
		pm.HitRate = float64(hits) / float64(total)
	}
	if n := m.lookups.Load(); n > 0 {
		pm.AvgResponseTimeMS = float64(m.lookupNanos.Load()) / float64(n) / float64(time.Millisecond)
	}
	if m.remote != nil {
		pm.BreakerState = m.remote.State()
	}
	return pm
}
