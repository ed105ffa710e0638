// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// defaultShardCount is the number of lock stripes in a Memory cache.
const defaultShardCount = 16

// Memory is a lock-striped, size- and time-bounded in-process cache.
//
// Keys are spread over independent shards, each with its own lock, entry map
// and expiry heap, so concurrent callers touching different keys rarely
// contend. When a shard exceeds its share of the capacity it first drops
// expired entries and then the entries closest to expiry.
//
// Memory never starts goroutines. Expired entries are removed lazily on Get
// and by EvictExpired, which a supervised background task calls.
type Memory[V any] struct {
	shards   []*memoryShard[V]
	ttl      time.Duration
	perShard int
	sizeOf   func(V) int
	now      func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type memoryShard[V any] struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry[V]
	expiry  *expiryHeap
	bytes   int64
}

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
	size      int
}

// MemoryStats is a point-in-time snapshot of Memory counters.
type MemoryStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
}

// MemoryOption configures a Memory cache.
type MemoryOption[V any] func(*Memory[V])

// WithSizeFunc reports the approximate byte size of a value for memory accounting.
func WithSizeFunc[V any](fn func(V) int) MemoryOption[V] {
	return func(m *Memory[V]) {
		m.sizeOf = fn
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock[V any](now func() time.Time) MemoryOption[V] {
	return func(m *Memory[V]) {
		m.now = now
	}
}

// WithShards overrides the number of lock stripes.
func WithShards[V any](n int) MemoryOption[V] {
	return func(m *Memory[V]) {
		if n > 0 {
			m.shards = make([]*memoryShard[V], n)
		}
	}
}

// NewMemory creates a cache holding at most capacity entries, each living for
// ttl unless set with an explicit TTL.
func NewMemory[V any](capacity int, ttl time.Duration, opts ...MemoryOption[V]) *Memory[V] {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	m := &Memory[V]{
		shards: make([]*memoryShard[V], defaultShardCount),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	for i := range m.shards {
		m.shards[i] = &memoryShard[V]{
			entries: make(map[string]memoryEntry[V]),
			expiry:  newExpiryHeap(),
		}
	}

	m.perShard = capacity / len(m.shards)
	if m.perShard < 1 {
		m.perShard = 1
	}
	return m
}

func (m *Memory[V]) shard(key string) *memoryShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Get returns the value stored under key if it exists and has not expired.
func (m *Memory[V]) Get(key string) (V, bool) {
	s := m.shard(key)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		var zero V
		return zero, false
	}

	if !m.now().Before(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if current, still := s.entries[key]; still && !m.now().Before(current.expiresAt) {
			s.removeLocked(key)
			m.evictions.Add(1)
		}
		s.mu.Unlock()

		m.misses.Add(1)
		var zero V
		return zero, false
	}

	m.hits.Add(1)
	return entry.value, true
}

// TTL returns the remaining lifetime of key, or zero if it is absent or expired.
func (m *Memory[V]) TTL(key string) time.Duration {
	s := m.shard(key)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return 0
	}
	remaining := entry.expiresAt.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Set stores value under key with the default TTL.
func (m *Memory[V]) Set(key string, value V) {
	m.SetWithTTL(key, value, m.ttl)
}

// SetWithTTL stores value under key, replacing any previous entry atomically.
func (m *Memory[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	size := 0
	if m.sizeOf != nil {
		size = m.sizeOf(value)
	}

	now := m.now()
	s := m.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.bytes -= int64(old.size)
	}
	expiresAt := now.Add(ttl)
	s.entries[key] = memoryEntry[V]{value: value, expiresAt: expiresAt, size: size}
	s.expiry.push(key, expiresAt)
	s.bytes += int64(size)

	m.evictions.Add(int64(s.enforceLocked(now, m.perShard)))
}

// Delete removes key and reports whether it was present.
func (m *Memory[V]) Delete(key string) bool {
	s := m.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	s.removeLocked(key)
	return true
}

// DeleteFunc removes every entry for which match returns true and returns
// the number removed. Shards are locked one at a time.
func (m *Memory[V]) DeleteFunc(match func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			if match(key, entry.value) {
				s.removeLocked(key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// EvictExpired removes expired entries and returns how many were dropped.
// The shard lock is taken once per removal so request-path callers are
// never blocked for longer than a single map operation.
func (m *Memory[V]) EvictExpired() int {
	removed := 0
	for _, s := range m.shards {
		for {
			now := m.now()

			s.mu.Lock()
			root := s.expiry.peek()
			if root == nil || now.Before(root.expiresAt) {
				s.mu.Unlock()
				break
			}
			s.removeLocked(root.key)
			s.mu.Unlock()

			removed++
		}
	}

	m.evictions.Add(int64(removed))
	return removed
}

// Keys returns every non-expired key.
func (m *Memory[V]) Keys() []string {
	now := m.now()
	keys := make([]string, 0)
	for _, s := range m.shards {
		s.mu.RLock()
		for key, entry := range s.entries {
			if now.Before(entry.expiresAt) {
				keys = append(keys, key)
			}
		}
		s.mu.RUnlock()
	}
	return keys
}

// Len returns the number of stored entries, including not-yet-swept expired ones.
func (m *Memory[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Bytes returns the accounted size of all stored values.
func (m *Memory[V]) Bytes() int64 {
	var total int64
	for _, s := range m.shards {
		s.mu.RLock()
		total += s.bytes
		s.mu.RUnlock()
	}
	return total
}

// Clear removes all entries.
func (m *Memory[V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		m.evictions.Add(int64(len(s.entries)))
		s.entries = make(map[string]memoryEntry[V])
		s.expiry = newExpiryHeap()
		s.bytes = 0
		s.mu.Unlock()
	}
}

// Stats returns a snapshot of the cache counters.
func (m *Memory[V]) Stats() MemoryStats {
	return MemoryStats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Entries:   m.Len(),
		Bytes:     m.Bytes(),
	}
}

// removeLocked deletes key from the map and the heap. Caller holds s.mu.
func (s *memoryShard[V]) removeLocked(key string) {
	if entry, ok := s.entries[key]; ok {
		s.bytes -= int64(entry.size)
		delete(s.entries, key)
	}
	s.expiry.remove(key)
}

// enforceLocked drops expired entries, then the earliest-expiring ones until
// the shard is within limit. Caller holds s.mu.
func (s *memoryShard[V]) enforceLocked(now time.Time, limit int) int {
	removed := 0
	for root := s.expiry.peek(); root != nil && !now.Before(root.expiresAt); root = s.expiry.peek() {
		s.removeLocked(root.key)
		removed++
	}
	for len(s.entries) > limit {
		root := s.expiry.pop()
		if root == nil {
			break
		}
		if entry, ok := s.entries[root.key]; ok {
			s.bytes -= int64(entry.size)
			delete(s.entries, root.key)
		}
		removed++
	}
	return removed
}
