// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemory_RoundTripAndExpiry(t *testing.T) {
	clk := newFakeClock()
	m := NewMemory[string](100, time.Minute, WithClock[string](clk.Now))

	m.Set("key1", "value1")
	got, ok := m.Get("key1")
	if !ok || got != "value1" {
		t.Fatalf("Get = %q, %v; want value1, true", got, ok)
	}

	if _, ok := m.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	clk.Advance(59 * time.Second)
	if _, ok := m.Get("key1"); !ok {
		t.Error("expected hit just before TTL")
	}

	clk.Advance(time.Second)
	if _, ok := m.Get("key1"); ok {
		t.Error("expected miss at TTL")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not removed on Get, Len = %d", m.Len())
	}

	stats := m.Stats()
	if stats.Hits != 2 || stats.Misses != 2 {
		t.Errorf("stats = %+v, want 2 hits and 2 misses", stats)
	}
}

func TestMemory_SetReplacesValueAndTTL(t *testing.T) {
	clk := newFakeClock()
	m := NewMemory[int](100, time.Minute, WithClock[int](clk.Now))

	m.SetWithTTL("k", 1, 10*time.Second)
	m.SetWithTTL("k", 2, time.Hour)

	clk.Advance(30 * time.Second)
	got, ok := m.Get("k")
	if !ok || got != 2 {
		t.Fatalf("Get = %d, %v; want 2, true", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	if ttl := m.TTL("k"); ttl != time.Hour-30*time.Second {
		t.Errorf("TTL = %v, want %v", ttl, time.Hour-30*time.Second)
	}
}

func TestMemory_CapacityEvictsEarliestExpiry(t *testing.T) {
	clk := newFakeClock()
	m := NewMemory[string](3, time.Minute, WithShards[string](1), WithClock[string](clk.Now))

	m.SetWithTTL("a", "a", 1*time.Minute)
	m.SetWithTTL("b", "b", 2*time.Minute)
	m.SetWithTTL("c", "c", 3*time.Minute)
	m.SetWithTTL("d", "d", 4*time.Minute)

	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	if _, ok := m.Get("a"); ok {
		t.Error("a should have been evicted as earliest-expiring")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := m.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
}

func TestMemory_CapacityDropsExpiredFirst(t *testing.T) {
	clk := newFakeClock()
	m := NewMemory[string](3, time.Minute, WithShards[string](1), WithClock[string](clk.Now))

	m.SetWithTTL("short", "s", 10*time.Second)
	m.SetWithTTL("x", "x", 5*time.Minute)
	m.SetWithTTL("y", "y", 6*time.Minute)

	clk.Advance(11 * time.Second)
	m.SetWithTTL("z", "z", 7*time.Minute)

	keys := m.Keys()
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[x y z]" {
		t.Errorf("keys = %v, want [x y z]", keys)
	}
	if m.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", m.Stats().Evictions)
	}
}

func TestMemory_EvictExpired(t *testing.T) {
	clk := newFakeClock()
	m := NewMemory[int](1000, time.Minute, WithClock[int](clk.Now))

	for i := 0; i < 50; i++ {
		m.SetWithTTL(fmt.Sprintf("short-%d", i), i, 10*time.Second)
		m.SetWithTTL(fmt.Sprintf("long-%d", i), i, time.Hour)
	}

	if n := m.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired before expiry removed %d", n)
	}

	clk.Advance(time.Minute)
	if n := m.EvictExpired(); n != 50 {
		t.Errorf("EvictExpired removed %d, want 50", n)
	}
	if m.Len() != 50 {
		t.Errorf("Len = %d, want 50", m.Len())
	}
}

func TestMemory_DeleteAndDeleteFunc(t *testing.T) {
	m := NewMemory[string](100, time.Minute)

	m.Set("user-a:1", "a")
	m.Set("user-a:2", "a")
	m.Set("user-b:1", "b")

	if !m.Delete("user-b:1") {
		t.Error("Delete reported missing key")
	}
	if m.Delete("user-b:1") {
		t.Error("second Delete reported present")
	}

	removed := m.DeleteFunc(func(_ string, v string) bool { return v == "a" })
	if removed != 2 {
		t.Errorf("DeleteFunc removed %d, want 2", removed)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemory_ByteAccounting(t *testing.T) {
	m := NewMemory[[]byte](100, time.Minute, WithSizeFunc[[]byte](func(b []byte) int { return len(b) }))

	m.Set("a", make([]byte, 100))
	m.Set("b", make([]byte, 50))
	if got := m.Bytes(); got != 150 {
		t.Errorf("Bytes = %d, want 150", got)
	}

	m.Set("a", make([]byte, 10))
	if got := m.Bytes(); got != 60 {
		t.Errorf("Bytes after replace = %d, want 60", got)
	}

	m.Delete("b")
	if got := m.Bytes(); got != 10 {
		t.Errorf("Bytes after delete = %d, want 10", got)
	}

	m.Clear()
	if got := m.Bytes(); got != 0 {
		t.Errorf("Bytes after clear = %d, want 0", got)
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory[int](500, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := fmt.Sprintf("key-%d", (g*1000+i)%700)
				m.Set(key, i)
				m.Get(key)
				if i%50 == 0 {
					m.EvictExpired()
				}
			}
		}(g)
	}
	wg.Wait()

	if m.Len() > 500 {
		t.Errorf("Len = %d exceeds capacity 500", m.Len())
	}
}
