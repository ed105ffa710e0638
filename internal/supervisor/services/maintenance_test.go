// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

const tick = 5 * time.Millisecond

type countingEvicter struct{ calls atomic.Int32 }

func (c *countingEvicter) EvictExpired() int { c.calls.Add(1); return 1 }

type countingPruner struct{ calls atomic.Int32 }

func (c *countingPruner) Prune() int { c.calls.Add(1); return 0 }

type mockRefresher struct {
	calls atomic.Int32
	err   error
}

func (m *mockRefresher) Refresh(context.Context) (int, error) {
	m.calls.Add(1)
	return 3, m.err
}

type mockFlusher struct {
	calls atomic.Int32
	err   error
}

func (m *mockFlusher) Flush(ctx context.Context) (int, error) {
	m.calls.Add(1)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return 1, m.err
}

// runFor serves svc until ctx is canceled after d and returns Serve's error.
func runFor(t *testing.T, svc suture.Service, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(d + 2*time.Second):
		t.Fatal("service did not stop")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServices_Interface(t *testing.T) {
	var _ suture.Service = (*CacheEvictionService)(nil)
	var _ suture.Service = (*PopularityRefreshService)(nil)
	var _ suture.Service = (*BehaviorFlushService)(nil)
}

func TestCacheEvictionService(t *testing.T) {
	cache := &countingEvicter{}
	pruner := &countingPruner{}
	svc := NewCacheEvictionService(cache, pruner, tick, zerolog.Nop())

	if svc.String() != "cache-eviction" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitFor(t, func() bool { return cache.calls.Load() >= 2 && pruner.calls.Load() >= 2 })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestCacheEvictionService_NilPruner(t *testing.T) {
	cache := &countingEvicter{}
	svc := NewCacheEvictionService(cache, nil, tick, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Serve(ctx) }()

	waitFor(t, func() bool { return cache.calls.Load() >= 1 })
}

func TestPopularityRefreshService_ErrorsDoNotStopLoop(t *testing.T) {
	refresher := &mockRefresher{err: errors.New("duckdb unavailable")}
	svc := NewPopularityRefreshService(refresher, tick, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitFor(t, func() bool { return refresher.calls.Load() >= 3 })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestBehaviorFlushService_FinalFlush(t *testing.T) {
	flusher := &mockFlusher{}
	// The interval is far longer than the run, so only the final flush happens.
	svc := NewBehaviorFlushService(flusher, time.Hour, zerolog.Nop())

	err := runFor(t, svc, 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
	}
	if got := flusher.calls.Load(); got != 1 {
		t.Errorf("flush calls = %d, want 1 final flush", got)
	}
}

func TestBehaviorFlushService_Periodic(t *testing.T) {
	flusher := &mockFlusher{}
	svc := NewBehaviorFlushService(flusher, tick, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitFor(t, func() bool { return flusher.calls.Load() >= 2 })
	cancel()
	<-errCh
}

func TestNewPeriodic_DefaultInterval(t *testing.T) {
	svc := NewPopularityRefreshService(&mockRefresher{}, 0, zerolog.Nop())
	if svc.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m default", svc.interval)
	}
}
