// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Tokens splits a query into its set of lowercase alphanumeric tokens.
func Tokens(query string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets have similarity 0 so an
// empty query never matches anything by similarity.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// CountTolerance bounds how far a reused result's item count may drift from
// the current candidate count. The allowed delta is the larger of Ratio of
// the current count and Absolute items.
type CountTolerance struct {
	Ratio    float64 `koanf:"ratio"`
	Absolute int     `koanf:"absolute"`
}

// Allows reports whether cached is close enough to current.
func (t CountTolerance) Allows(cached, current int) bool {
	delta := cached - current
	if delta < 0 {
		delta = -delta
	}
	limit := t.Ratio * float64(current)
	if abs := float64(t.Absolute); abs > limit {
		limit = abs
	}
	return float64(delta) <= limit
}

// Match is a similarity candidate found in the recent-key index.
type Match struct {
	Key        string
	Query      string
	Similarity float64
	ItemCount  int
}

// recentKey is one node of a scope's recency list.
type recentKey struct {
	key       string
	query     string
	tokens    map[string]struct{}
	itemCount int
	prev      *recentKey
	next      *recentKey
}

// scopeIndex is a bounded most-recently-used list of keys for one scope.
// head.next is the most recent, tail.prev the least.
type scopeIndex struct {
	items map[string]*recentKey
	head  *recentKey
	tail  *recentKey
}

func newScopeIndex() *scopeIndex {
	s := &scopeIndex{
		items: make(map[string]*recentKey),
		head:  &recentKey{},
		tail:  &recentKey{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

func (s *scopeIndex) addToFront(n *recentKey) {
	n.prev = s.head
	n.next = s.head.next
	s.head.next.prev = n
	s.head.next = n
}

func (s *scopeIndex) unlink(n *recentKey) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

// SimilarityIndex remembers the most recently stored keys per scope (sort mode
// plus user) together with their query tokens and item counts, so an exact
// miss can be matched against near-identical queries.
type SimilarityIndex struct {
	mu        sync.Mutex
	window    int
	maxScopes int
	scopes    map[string]*scopeIndex
	scopeOf   map[string]string
}

// NewSimilarityIndex creates an index keeping window keys per scope and at
// most maxScopes scopes.
func NewSimilarityIndex(window, maxScopes int) *SimilarityIndex {
	if window <= 0 {
		window = 50
	}
	if maxScopes <= 0 {
		maxScopes = 10000
	}
	return &SimilarityIndex{
		window:    window,
		maxScopes: maxScopes,
		scopes:    make(map[string]*scopeIndex),
		scopeOf:   make(map[string]string),
	}
}

// Scope builds the index scope for a sort mode and user. Anonymous requests
// share one scope per sort mode.
func Scope(sortMode, userID string) string {
	return strings.ToLower(sortMode) + "|" + userID
}

// Remember records key as the most recent entry of scope.
func (x *SimilarityIndex) Remember(scope, key, query string, itemCount int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	s, ok := x.scopes[scope]
	if !ok {
		if len(x.scopes) >= x.maxScopes {
			x.dropAnyScopeLocked()
		}
		s = newScopeIndex()
		x.scopes[scope] = s
	}

	if n, ok := s.items[key]; ok {
		n.itemCount = itemCount
		s.unlink(n)
		s.addToFront(n)
		return
	}

	n := &recentKey{key: key, query: query, tokens: Tokens(query), itemCount: itemCount}
	s.addToFront(n)
	s.items[key] = n
	x.scopeOf[key] = scope

	for len(s.items) > x.window {
		oldest := s.tail.prev
		s.unlink(oldest)
		delete(s.items, oldest.key)
		delete(x.scopeOf, oldest.key)
	}
}

// Forget removes key from whatever scope holds it.
func (x *SimilarityIndex) Forget(key string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	scope, ok := x.scopeOf[key]
	if !ok {
		return
	}
	delete(x.scopeOf, key)

	s := x.scopes[scope]
	if n, ok := s.items[key]; ok {
		s.unlink(n)
		delete(s.items, key)
	}
	if len(s.items) == 0 {
		delete(x.scopes, scope)
	}
}

// ForgetUser removes every scope belonging to userID.
func (x *SimilarityIndex) ForgetUser(userID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	suffix := "|" + userID
	for scope, s := range x.scopes {
		if strings.HasSuffix(scope, suffix) {
			for key := range s.items {
				delete(x.scopeOf, key)
			}
			delete(x.scopes, scope)
		}
	}
}

// Similar returns the keys in scope whose query is at least minSimilarity
// similar to query and whose item count is within tol of itemCount, best
// match first. The exact key exclude is skipped.
func (x *SimilarityIndex) Similar(scope, query, exclude string, itemCount int, minSimilarity float64, tol CountTolerance) []Match {
	tokens := Tokens(query)
	if len(tokens) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	s, ok := x.scopes[scope]
	if !ok {
		return nil
	}

	var matches []Match
	for n := s.head.next; n != s.tail; n = n.next {
		if n.key == exclude {
			continue
		}
		sim := Jaccard(tokens, n.tokens)
		if sim < minSimilarity || !tol.Allows(n.itemCount, itemCount) {
			continue
		}
		matches = append(matches, Match{Key: n.key, Query: n.query, Similarity: sim, ItemCount: n.itemCount})
	}

	// Stable keeps recency order among equal similarities.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// Len returns the number of indexed keys.
func (x *SimilarityIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.scopeOf)
}

// dropAnyScopeLocked removes one scope when the scope table is full. Caller holds x.mu.
func (x *SimilarityIndex) dropAnyScopeLocked() {
	for scope, s := range x.scopes {
		for key := range s.items {
			delete(x.scopeOf, key)
		}
		delete(x.scopes, scope)
		return
	}
}
