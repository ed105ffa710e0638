// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T, clk *fakeClock, remote *RedisTier) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	m, err := NewManager(cfg, remote, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if clk != nil {
		m.now = clk.Now
		m.memory = NewMemory[*Entry](cfg.Capacity, cfg.BaseTTL,
			WithSizeFunc[*Entry](entrySize), WithClock[*Entry](clk.Now))
	}
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func request(query, mode, user string, items int) Request {
	return Request{
		Key:       DeriveKey(KeyParams{Query: query, SortMode: mode, UserID: user}),
		Query:     query,
		SortMode:  mode,
		UserID:    user,
		ItemCount: items,
	}
}

func TestManager_SetGetRoundTrip(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(t, clk, nil)
	ctx := context.Background()

	value := []byte(`[{"id":"a"}]`)
	if err := m.Set(ctx, Entry{Key: "k", Query: "q", SortMode: "relevance", Value: value, ItemCount: 1, TTL: time.Minute}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// The stored entry must not observe later caller mutation.
	value[0] = 'X'

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `[{"id":"a"}]` {
		t.Errorf("Value = %s, stored entry was mutated", got.Value)
	}

	got.Value[0] = 'Y'
	again, _ := m.Get(ctx, "k")
	if again.Value[0] != '[' {
		t.Error("returned entry aliases stored value")
	}

	clk.Advance(time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after TTL = %v, want ErrMiss", err)
	}
}

func TestManager_RedisBackfill(t *testing.T) {
	fake := newFakeRedis()
	ctx := context.Background()

	writer := newTestManager(t, nil, NewRedisTier(fake, testTierConfig("test-backfill-w"), zerolog.Nop()))
	if err := writer.Set(ctx, Entry{Key: "shared", Query: "roads", SortMode: "relevance", Value: []byte("v"), ItemCount: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reader := newTestManager(t, nil, NewRedisTier(fake, testTierConfig("test-backfill-r"), zerolog.Nop()))
	e, source, err := reader.Lookup(ctx, Request{Key: "shared", Query: "roads", SortMode: "relevance", ItemCount: 1})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if source != SourceRemote || string(e.Value) != "v" {
		t.Errorf("Lookup = %s from %s, want v from redis", e.Value, source)
	}

	_, source, err = reader.Lookup(ctx, Request{Key: "shared", Query: "roads", SortMode: "relevance", ItemCount: 1})
	if err != nil || source != SourceMemory {
		t.Errorf("second Lookup source = %s, %v; want memory", source, err)
	}
	if reader.Metrics().RemoteHits != 1 {
		t.Errorf("RemoteHits = %d, want 1", reader.Metrics().RemoteHits)
	}
}

func TestManager_SimilarityFallback(t *testing.T) {
	m := newTestManager(t, nil, nil)
	ctx := context.Background()

	stored := request("census tracts 2020", "relevance", "u1", 20)
	if err := m.Set(ctx, Entry{Key: stored.Key, Query: stored.Query, SortMode: "relevance", UserID: "u1", Value: []byte("cached"), ItemCount: 20}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	tests := []struct {
		name   string
		req    Request
		reused bool
	}{
		{"reordered tokens reuse", request("2020 census tracts", "relevance", "u1", 20), true},
		{"count within absolute tolerance", request("2020 census tracts", "relevance", "u1", 23), true},
		{"count outside tolerance", request("2020 census tracts", "relevance", "u1", 30), false},
		{"dissimilar query", request("census blocks", "relevance", "u1", 20), false},
		{"different sort mode", request("2020 census tracts", "popularity", "u1", 20), false},
		{"different user", request("2020 census tracts", "relevance", "u2", 20), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, source, err := m.Lookup(ctx, tt.req)
			if tt.reused {
				if err != nil || source != SourceSimilar || string(e.Value) != "cached" {
					t.Errorf("Lookup = %v, %s, %v; want similar reuse", e, source, err)
				}
				return
			}
			if !errors.Is(err, ErrMiss) {
				t.Errorf("Lookup err = %v (source %s), want ErrMiss", err, source)
			}
		})
	}
}

func TestManager_SimilarityDropsEvictedKeys(t *testing.T) {
	m := newTestManager(t, nil, nil)
	ctx := context.Background()

	stored := request("land use map", "relevance", "", 10)
	_ = m.Set(ctx, Entry{Key: stored.Key, Query: stored.Query, SortMode: "relevance", Value: []byte("x"), ItemCount: 10})
	m.memory.Delete(stored.Key)

	if _, _, err := m.GetSimilar(ctx, request("map land use", "relevance", "", 10)); !errors.Is(err, ErrMiss) {
		t.Errorf("GetSimilar = %v, want ErrMiss", err)
	}
	if m.index.Len() != 0 {
		t.Errorf("stale index entry not dropped, Len = %d", m.index.Len())
	}
}

func TestManager_GetOrComputeDeduplicates(t *testing.T) {
	m := newTestManager(t, nil, nil)
	req := request("hydrology", "relevance", "", 5)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) ([]byte, int, error) {
		calls.Add(1)
		<-release
		return []byte("computed"), 5, nil
	}

	const n = 20
	var wg sync.WaitGroup
	var started sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			e, _, err := m.GetOrCompute(context.Background(), req, compute)
			if err == nil && string(e.Value) != "computed" {
				err = errors.New("unexpected value " + string(e.Value))
			}
			errs <- err
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetOrCompute: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("compute ran %d times, want 1", got)
	}

	_, source, err := m.GetOrCompute(context.Background(), req, compute)
	if err != nil || source != SourceMemory {
		t.Errorf("follow-up source = %s, %v; want memory hit", source, err)
	}
}

func TestManager_GetOrComputeErrorNotCached(t *testing.T) {
	m := newTestManager(t, nil, nil)
	req := request("broken", "relevance", "", 1)
	boom := errors.New("boom")

	_, _, err := m.GetOrCompute(context.Background(), req, func(context.Context) ([]byte, int, error) {
		return nil, 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := m.Get(context.Background(), req.Key); !errors.Is(err, ErrMiss) {
		t.Errorf("failed computation was cached: %v", err)
	}
}

func TestManager_GetOrComputeCancelled(t *testing.T) {
	m := newTestManager(t, nil, nil)
	req := request("slow", "relevance", "", 1)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, _, err := m.GetOrCompute(ctx, req, func(context.Context) ([]byte, int, error) {
			<-release
			return []byte("late"), 1, nil
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetOrCompute did not return after cancellation")
	}
	close(release)
}

func TestManager_TTLFromPolicy(t *testing.T) {
	m := newTestManager(t, nil, nil)
	ctx := context.Background()

	anon, _, err := m.GetOrCompute(ctx, request("parcels", "personalized", "", 1), func(context.Context) ([]byte, int, error) {
		return []byte("x"), 1, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if anon.TTL != 2*m.cfg.BaseTTL {
		t.Errorf("anonymous personalized TTL = %v, want %v", anon.TTL, 2*m.cfg.BaseTTL)
	}

	scoped, _, err := m.GetOrCompute(ctx, request("parcels", "personalized", "u1", 1), func(context.Context) ([]byte, int, error) {
		return []byte("x"), 1, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if scoped.TTL != m.cfg.BaseTTL {
		t.Errorf("user-scoped TTL = %v, want %v", scoped.TTL, m.cfg.BaseTTL)
	}
}

func TestManager_RedisOutageIsAMiss(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr(errors.New("connection refused"))
	m := newTestManager(t, nil, NewRedisTier(fake, testTierConfig("test-outage"), zerolog.Nop()))

	for i := 0; i < 5; i++ {
		req := request("rivers", "relevance", "", 3)
		req.Key = req.Key + string(rune('a'+i))
		e, source, err := m.GetOrCompute(context.Background(), req, func(context.Context) ([]byte, int, error) {
			return []byte("fresh"), 3, nil
		})
		if err != nil || string(e.Value) != "fresh" {
			t.Fatalf("GetOrCompute #%d = %v, %s, %v", i, e, source, err)
		}
	}
	if got := m.Metrics().BreakerState; got != "open" {
		t.Errorf("breaker state = %s, want open", got)
	}
}

func TestManager_InvalidateUser(t *testing.T) {
	fake := newFakeRedis()
	m := newTestManager(t, nil, NewRedisTier(fake, testTierConfig("test-invalidate"), zerolog.Nop()))
	ctx := context.Background()

	for _, r := range []Request{
		request("a", "relevance", "u1", 1),
		request("b", "personalized", "u1", 1),
		request("a", "relevance", "u2", 1),
	} {
		_ = m.Set(ctx, Entry{Key: r.Key, Query: r.Query, SortMode: r.SortMode, UserID: r.UserID, Value: []byte("v"), ItemCount: 1})
	}

	if n := m.InvalidateUser(ctx, "u1"); n != 2 {
		t.Errorf("InvalidateUser removed %d, want 2", n)
	}
	if _, err := m.Get(ctx, request("a", "relevance", "u1", 1).Key); !errors.Is(err, ErrMiss) {
		t.Errorf("u1 entry survived in some tier: %v", err)
	}
	if _, err := m.Get(ctx, request("a", "relevance", "u2", 1).Key); err != nil {
		t.Errorf("u2 entry removed: %v", err)
	}
	if n := m.InvalidateUser(ctx, ""); n != 0 {
		t.Errorf("empty user invalidated %d entries", n)
	}
}

func TestManager_InvalidateUserAcrossInstances(t *testing.T) {
	fake := newFakeRedis()
	writer := newTestManager(t, nil, NewRedisTier(fake, testTierConfig("test-invalidate-writer"), zerolog.Nop()))
	resetter := newTestManager(t, nil, NewRedisTier(fake, testTierConfig("test-invalidate-resetter"), zerolog.Nop()))
	ctx := context.Background()

	alice := request("roads", "personalized", "alice", 2)
	bob := request("roads", "personalized", "bob", 2)
	for _, r := range []Request{alice, bob} {
		if err := writer.Set(ctx, Entry{Key: r.Key, Query: r.Query, SortMode: r.SortMode, UserID: r.UserID, Value: []byte("old"), ItemCount: 2}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// The resetting instance never held alice's entry in memory.
	if n := resetter.InvalidateUser(ctx, "alice"); n != 1 {
		t.Errorf("InvalidateUser removed %d, want 1", n)
	}
	if _, src, err := resetter.Lookup(ctx, alice); !errors.Is(err, ErrMiss) {
		t.Errorf("Lookup after reset = source %q err %v, want ErrMiss", src, err)
	}

	// The writer's own memory copy is gone too once it drops it.
	writer.memory.Delete(alice.Key)
	if _, err := writer.Get(ctx, alice.Key); !errors.Is(err, ErrMiss) {
		t.Errorf("writer Get after reset = %v, want ErrMiss", err)
	}
	if _, err := resetter.Get(ctx, bob.Key); err != nil {
		t.Errorf("other user's entry removed: %v", err)
	}
}

func TestManager_EvictExpiredAndMetrics(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(t, clk, nil)
	ctx := context.Background()

	_ = m.Set(ctx, Entry{Key: "short", Query: "q", SortMode: "relevance", Value: []byte("v"), TTL: time.Second})
	_ = m.Set(ctx, Entry{Key: "long", Query: "q2", SortMode: "relevance", Value: []byte("v"), TTL: time.Hour})

	if _, _, err := m.Lookup(ctx, Request{Key: "long", Query: "q2", SortMode: "relevance"}); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, _, err := m.Lookup(ctx, Request{Key: "nope", Query: "zzz", SortMode: "relevance"}); !errors.Is(err, ErrMiss) {
		t.Fatalf("Lookup miss: %v", err)
	}

	clk.Advance(2 * time.Second)
	if n := m.EvictExpired(); n != 1 {
		t.Errorf("EvictExpired = %d, want 1", n)
	}

	pm := m.Metrics()
	if pm.Entries != 1 {
		t.Errorf("Entries = %d, want 1", pm.Entries)
	}
	if pm.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", pm.HitRate)
	}
	if pm.MemoryUsageBytes <= 0 {
		t.Errorf("MemoryUsageBytes = %d, want > 0", pm.MemoryUsageBytes)
	}
	if pm.RemoteEnabled {
		t.Error("RemoteEnabled should be false without a Redis tier")
	}
}

func TestManager_Closed(t *testing.T) {
	m, err := NewManager(DefaultConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Set(context.Background(), Entry{Key: "k"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Set before Open = %v, want ErrClosed", err)
	}

	_ = m.Open(context.Background())
	_ = m.Close()
	_, _, err = m.GetOrCompute(context.Background(), request("q", "relevance", "", 1), func(context.Context) ([]byte, int, error) {
		return []byte("v"), 1, nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("GetOrCompute after Close = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero ttl", func(c *Config) { c.BaseTTL = 0 }, true},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, true},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }, true},
		{"negative tolerance", func(c *Config) { c.CountTolerance.Absolute = -1 }, true},
		{"zero recent keys", func(c *Config) { c.RecentKeys = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
