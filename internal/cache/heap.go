// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import "time"

// expiryEntry is one node of the expiry heap.
type expiryEntry struct {
	key       string
	expiresAt time.Time
	index     int // position in the heap slice, kept for O(log n) removal
}

// expiryHeap is a min-heap of keys ordered by expiration time. The earliest
// expiring key is always at the root, so both expired-first and
// oldest-by-expiry eviction pop from the same place.
//
// It is not safe for concurrent use; the owning shard's lock guards it.
type expiryHeap struct {
	heap  []*expiryEntry
	byKey map[string]*expiryEntry
}

func newExpiryHeap() *expiryHeap {
	return &expiryHeap{
		heap:  make([]*expiryEntry, 0),
		byKey: make(map[string]*expiryEntry),
	}
}

// push inserts a key or moves an existing one to its new expiration.
func (h *expiryHeap) push(key string, expiresAt time.Time) {
	if existing, ok := h.byKey[key]; ok {
		existing.expiresAt = expiresAt
		h.fix(existing.index)
		return
	}

	entry := &expiryEntry{key: key, expiresAt: expiresAt, index: len(h.heap)}
	h.heap = append(h.heap, entry)
	h.byKey[key] = entry
	h.bubbleUp(entry.index)
}

// peek returns the earliest-expiring entry without removing it.
func (h *expiryHeap) peek() *expiryEntry {
	if len(h.heap) == 0 {
		return nil
	}
	return h.heap[0]
}

// pop removes and returns the earliest-expiring entry.
func (h *expiryHeap) pop() *expiryEntry {
	if len(h.heap) == 0 {
		return nil
	}
	return h.removeAt(0)
}

// remove drops a key from the heap. Missing keys are ignored.
func (h *expiryHeap) remove(key string) {
	if entry, ok := h.byKey[key]; ok {
		h.removeAt(entry.index)
	}
}

func (h *expiryHeap) len() int {
	return len(h.heap)
}

func (h *expiryHeap) removeAt(i int) *expiryEntry {
	n := len(h.heap) - 1
	entry := h.heap[i]
	delete(h.byKey, entry.key)

	if i == n {
		h.heap = h.heap[:n]
		return entry
	}

	h.heap[i] = h.heap[n]
	h.heap[i].index = i
	h.heap = h.heap[:n]
	h.fix(i)

	return entry
}

func (h *expiryHeap) fix(i int) {
	if h.bubbleUp(i) {
		return
	}
	h.bubbleDown(i)
}

func (h *expiryHeap) bubbleUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.heap[i].expiresAt.Before(h.heap[parent].expiresAt) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (h *expiryHeap) bubbleDown(i int) {
	n := len(h.heap)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < n && h.heap[left].expiresAt.Before(h.heap[smallest].expiresAt) {
			smallest = left
		}
		if right < n && h.heap[right].expiresAt.Before(h.heap[smallest].expiresAt) {
			smallest = right
		}
		if smallest == i {
			return
		}

		h.swap(i, smallest)
		i = smallest
	}
}

func (h *expiryHeap) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.heap[i].index = i
	h.heap[j].index = j
}
