// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"sync"
	"time"
)

// WindowCounter counts events over a trailing time window. Time is divided
// into fixed buckets held in a ring; the count is the sum of live buckets.
//
// Complexity:
//   - Add: O(1) amortized
//   - Count: O(k) where k = number of buckets
type WindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	current    int
	lastUpdate time.Time
	now        func() time.Time
}

// NewWindowCounter creates a counter over window split into numBuckets buckets.
func NewWindowCounter(window time.Duration, numBuckets int, now func() time.Time) *WindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if window <= 0 {
		window = time.Hour
	}
	if now == nil {
		now = time.Now
	}

	return &WindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: window / time.Duration(numBuckets),
		lastUpdate: now(),
		now:        now,
	}
}

// Add adds delta to the current bucket.
func (c *WindowCounter) Add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance()
	c.buckets[c.current] += delta
}

// Count returns the number of events inside the window.
func (c *WindowCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance()

	var total int64
	for _, n := range c.buckets {
		total += n
	}
	return total
}

// lastSeen returns when the counter was last advanced.
func (c *WindowCounter) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdate
}

// advance rotates the ring past elapsed buckets. Caller holds c.mu.
func (c *WindowCounter) advance() {
	now := c.now()
	elapsed := int(now.Sub(c.lastUpdate) / c.bucketSize)
	if elapsed <= 0 {
		return
	}

	if elapsed >= len(c.buckets) {
		for i := range c.buckets {
			c.buckets[i] = 0
		}
		c.current = 0
	} else {
		for i := 0; i < elapsed; i++ {
			c.current = (c.current + 1) % len(c.buckets)
			c.buckets[c.current] = 0
		}
	}

	// Keep lastUpdate aligned to bucket boundaries so partial buckets are not lost.
	c.lastUpdate = c.lastUpdate.Add(time.Duration(elapsed) * c.bucketSize)
}

// FrequencyTracker counts how often each key (a normalized query) was seen in
// a trailing window. It holds at most maxKeys counters; when full, the counter
// idle the longest is dropped.
type FrequencyTracker struct {
	mu         sync.RWMutex
	counters   map[string]*WindowCounter
	window     time.Duration
	numBuckets int
	maxKeys    int
	now        func() time.Time
}

// NewFrequencyTracker creates a tracker. A maxKeys of zero means unbounded.
func NewFrequencyTracker(window time.Duration, numBuckets, maxKeys int) *FrequencyTracker {
	return &FrequencyTracker{
		counters:   make(map[string]*WindowCounter),
		window:     window,
		numBuckets: numBuckets,
		maxKeys:    maxKeys,
		now:        time.Now,
	}
}

// Observe records one occurrence of key and returns the updated count.
func (f *FrequencyTracker) Observe(key string) int64 {
	f.mu.Lock()
	counter, ok := f.counters[key]
	if !ok {
		if f.maxKeys > 0 && len(f.counters) >= f.maxKeys {
			f.evictIdleLocked()
		}
		counter = NewWindowCounter(f.window, f.numBuckets, f.now)
		f.counters[key] = counter
	}
	f.mu.Unlock()

	counter.Add(1)
	return counter.Count()
}

// Count returns the windowed count for key.
func (f *FrequencyTracker) Count(key string) int64 {
	f.mu.RLock()
	counter, ok := f.counters[key]
	f.mu.RUnlock()

	if !ok {
		return 0
	}
	return counter.Count()
}

// Len returns the number of tracked keys.
func (f *FrequencyTracker) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.counters)
}

// Prune drops counters with nothing left in the window and returns how many
// were removed.
func (f *FrequencyTracker) Prune() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for key, counter := range f.counters {
		if counter.Count() == 0 {
			delete(f.counters, key)
			removed++
		}
	}
	return removed
}

// evictIdleLocked removes the counter with the oldest update. Caller holds f.mu.
func (f *FrequencyTracker) evictIdleLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, counter := range f.counters {
		seen := counter.lastSeen()
		if !found || seen.Before(oldest) {
			oldestKey, oldest, found = key, seen, true
		}
	}
	if found {
		delete(f.counters, oldestKey)
	}
}
