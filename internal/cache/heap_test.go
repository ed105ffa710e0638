// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func TestExpiryHeap_PopOrder(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	h := newExpiryHeap()

	h.push("c", base.Add(3*time.Second))
	h.push("a", base.Add(1*time.Second))
	h.push("b", base.Add(2*time.Second))

	if h.len() != 3 {
		t.Fatalf("len = %d, want 3", h.len())
	}
	if root := h.peek(); root == nil || root.key != "a" {
		t.Fatalf("peek = %v, want a", root)
	}

	for _, want := range []string{"a", "b", "c"} {
		got := h.pop()
		if got == nil || got.key != want {
			t.Fatalf("pop = %v, want %s", got, want)
		}
	}
	if h.pop() != nil {
		t.Error("expected nil from empty heap")
	}
}

func TestExpiryHeap_PushUpdatesExisting(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	h := newExpiryHeap()

	h.push("a", base.Add(1*time.Second))
	h.push("b", base.Add(2*time.Second))
	h.push("a", base.Add(5*time.Second))

	if h.len() != 2 {
		t.Fatalf("len = %d, want 2", h.len())
	}
	if root := h.peek(); root.key != "b" {
		t.Errorf("peek = %s, want b after a moved later", root.key)
	}
}

func TestExpiryHeap_Remove(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	h := newExpiryHeap()

	h.push("a", base.Add(1*time.Second))
	h.push("b", base.Add(2*time.Second))
	h.push("c", base.Add(3*time.Second))

	h.remove("b")
	h.remove("missing")

	if h.len() != 2 {
		t.Fatalf("len = %d, want 2", h.len())
	}
	if got := h.pop(); got.key != "a" {
		t.Errorf("pop = %s, want a", got.key)
	}
	if got := h.pop(); got.key != "c" {
		t.Errorf("pop = %s, want c", got.key)
	}
}

func TestExpiryHeap_RandomizedOrder(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	rng := rand.New(rand.NewSource(42))
	h := newExpiryHeap()

	for i := 0; i < 500; i++ {
		h.push(fmt.Sprintf("k%d", i), base.Add(time.Duration(rng.Intn(10000))*time.Millisecond))
	}
	for i := 0; i < 100; i++ {
		h.remove(fmt.Sprintf("k%d", rng.Intn(500)))
	}

	var last time.Time
	for h.len() > 0 {
		e := h.pop()
		if e.expiresAt.Before(last) {
			t.Fatalf("heap order violated: %v before %v", e.expiresAt, last)
		}
		if e.index < 0 {
			t.Fatalf("negative index for %s", e.key)
		}
		last = e.expiresAt
	}
	if len(h.byKey) != 0 {
		t.Errorf("byKey has %d leftovers", len(h.byKey))
	}
}
