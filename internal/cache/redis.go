// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/catalogrank/internal/metrics"
)

// ErrTierUnavailable is returned when the shared tier is skipped because its
// circuit breaker is open or rejecting half-open probes.
var ErrTierUnavailable = errors.New("shared cache tier unavailable")

// RedisClient is the subset of *redis.Client used by RedisTier.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	ExpireGT(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisTierConfig configures the shared tier and its circuit breaker.
type RedisTierConfig struct {
	// Prefix is prepended to every key.
	Prefix string `koanf:"prefix"`

	// OpTimeout bounds each Redis round trip.
	OpTimeout time.Duration `koanf:"op_timeout"`

	// Breaker settings.
	BreakerName      string        `koanf:"breaker_name"`
	MaxRequests      uint32        `koanf:"breaker_max_requests"`
	Interval         time.Duration `koanf:"breaker_interval"`
	Timeout          time.Duration `koanf:"breaker_timeout"`
	FailureThreshold uint32        `koanf:"breaker_failure_threshold"`
}

// DefaultRedisTierConfig returns conservative defaults. The op timeout is kept
// well under the ranking latency budget.
func DefaultRedisTierConfig() RedisTierConfig {
	return RedisTierConfig{
		Prefix:           "catalogrank:",
		OpTimeout:        50 * time.Millisecond,
		BreakerName:      "redis-cache",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// RedisTier is the shared, distributed cache tier. Every call goes through a
// circuit breaker so an unreachable Redis is skipped quickly instead of
// adding a timeout to each ranking request.
type RedisTier struct {
	client    RedisClient
	cb        *gobreaker.CircuitBreaker[[]byte]
	prefix    string
	opTimeout time.Duration
	name      string
	logger    zerolog.Logger
}

// NewRedisClient builds a go-redis client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
	})
}

// NewRedisTier wraps client with a circuit breaker.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewRedisTier(client RedisClient, cfg RedisTierConfig, logger zerolog.Logger) *RedisTier {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultRedisTierConfig().OpTimeout
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = DefaultRedisTierConfig().BreakerName
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultRedisTierConfig().FailureThreshold
	}

	t := &RedisTier{
		client:    client,
		prefix:    cfg.Prefix,
		opTimeout: cfg.OpTimeout,
		name:      cfg.BreakerName,
		logger:    logger.With().Str("component", "redis-tier").Logger(),
	}

	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A plain miss is a healthy response.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to.String()))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			t.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
	t.cb = gobreaker.NewCircuitBreaker[[]byte](settings)
	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0)

	return t
}

// Get returns the value stored under key. A missing key returns ErrMiss; an
// open breaker returns ErrTierUnavailable.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := t.cb.Execute(func() ([]byte, error) {
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		defer cancel()

		data, err := t.client.Get(opCtx, t.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		if err != nil {
			return nil, fmt.Errorf("redis get: %w", err)
		}
		return data, nil
	})
	return value, t.classify(err)
}

// Set stores value under key for ttl. Last write wins.
func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := t.cb.Execute(func() ([]byte, error) {
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		defer cancel()

		if err := t.client.Set(opCtx, t.prefix+key, value, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set: %w", err)
		}
		return nil, nil
	})
	return t.classify(err)
}

// Delete removes keys.
func (t *RedisTier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = t.prefix + k
	}

	_, err := t.cb.Execute(func() ([]byte, error) {
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		defer cancel()

		if err := t.client.Del(opCtx, prefixed...).Err(); err != nil {
			return nil, fmt.Errorf("redis del: %w", err)
		}
		return nil, nil
	})
	return t.classify(err)
}

// TrackUserKey records key in the per-user key set of userID so that
// InvalidateUser can find it from any instance. The set lives at least as
// long as the longest-lived key added to it.
func (t *RedisTier) TrackUserKey(ctx context.Context, userID, key string, ttl time.Duration) error {
	setKey := t.userSetKey(userID)
	_, err := t.cb.Execute(func() ([]byte, error) {
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		defer cancel()

		if err := t.client.SAdd(opCtx, setKey, key).Err(); err != nil {
			return nil, fmt.Errorf("redis sadd: %w", err)
		}
		if ttl <= 0 {
			return nil, nil
		}
		if err := t.client.ExpireNX(opCtx, setKey, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis expire: %w", err)
		}
		if err := t.client.ExpireGT(opCtx, setKey, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis expire: %w", err)
		}
		return nil, nil
	})
	return t.classify(err)
}

// InvalidateUser deletes every key tracked for userID, the keys in extra,
// and the tracking set. It returns how many cached keys were deleted.
func (t *RedisTier) InvalidateUser(ctx context.Context, userID string, extra ...string) (int, error) {
	setKey := t.userSetKey(userID)
	deleted := 0
	_, err := t.cb.Execute(func() ([]byte, error) {
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		defer cancel()

		members, err := t.client.SMembers(opCtx, setKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis smembers: %w", err)
		}

		seen := make(map[string]struct{}, len(members)+len(extra))
		keys := make([]string, 0, len(members)+len(extra)+1)
		for _, k := range append(members, extra...) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, t.prefix+k)
		}
		keys = append(keys, setKey)

		n, err := t.client.Del(opCtx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis del: %w", err)
		}
		if len(members) > 0 {
			n-- // the tracking set itself
		}
		deleted = int(n)
		return nil, nil
	})
	return deleted, t.classify(err)
}

func (t *RedisTier) userSetKey(userID string) string {
	return t.prefix + "user:" + userID
}

// Ping checks connectivity without going through the breaker.
func (t *RedisTier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// State returns the breaker state name.
func (t *RedisTier) State() string {
	return t.cb.State().String()
}

// Close closes the underlying client.
func (t *RedisTier) Close() error {
	return t.client.Close()
}

func (t *RedisTier) classify(err error) error {
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "success").Inc()
		return nil
	case errors.Is(err, ErrMiss):
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "success").Inc()
		return ErrMiss
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "rejected").Inc()
		return ErrTierUnavailable
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "failure").Inc()
		return err
	}
}
