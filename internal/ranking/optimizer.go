// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package ranking

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/weights"
)

// Optimizer thresholds and adjustments.
const (
	lowSatisfaction     = 0.7
	deepClickPosition   = 5.0
	lowSuccessRate      = 0.6
	staleResultAge      = 30 * 24 * time.Hour
	personalizationStep = 0.05
	personalizationCap  = 0.3
	relevanceStep       = 0.1
	relevanceCap        = 0.6
	popularityStep      = 0.1
	popularityCap       = 0.5
	recencyStep         = 0.05
	recencyCap          = 0.4

	statsWindow     = 100
	maxStatsQueries = 10000
	statsTTL        = 24 * time.Hour
)

// Feedback is the explicit and implicit signal for one (query, user) pair.
type Feedback struct {
	// Satisfaction is an explicit rating in [0, 1], nil when not given.
	Satisfaction *float64 `json:"satisfaction,omitempty"`

	// ClickPositions are the 1-based result positions the user clicked.
	ClickPositions []int `json:"click_positions,omitempty"`
}

func (f *Feedback) avgClickPosition() (float64, bool) {
	if f == nil || len(f.ClickPositions) == 0 {
		return 0, false
	}
	sum := 0
	for _, p := range f.ClickPositions {
		sum += p
	}
	return float64(sum) / float64(len(f.ClickPositions)), true
}

// QueryStat summarizes recent outcomes for one query.
type QueryStat struct {
	Observations     int           `json:"observations"`
	SuccessRate      float64       `json:"success_rate"`
	AvgClickPosition float64       `json:"avg_click_position"`
	AvgResultAge     time.Duration `json:"avg_result_age"`
	ageSamples       int
}

type queryWindow struct {
	outcomes  []bool
	positions []int
	ages      []time.Duration
}

// QueryStats keeps a bounded window of outcomes per normalized query.
type QueryStats struct {
	mu      sync.Mutex
	windows *cache.Memory[*queryWindow]
}

// NewQueryStats creates an empty QueryStats.
func NewQueryStats() *QueryStats {
	return &QueryStats{windows: cache.NewMemory[*queryWindow](maxStatsQueries, statsTTL)}
}

func (s *QueryStats) windowLocked(query string) *queryWindow {
	w, ok := s.windows.Get(query)
	if !ok {
		w = &queryWindow{}
	}
	// Re-set on every write so active queries stay resident.
	s.windows.Set(query, w)
	return w
}

// RecordOutcome records whether a search session for query succeeded and
// where the user clicked.
func (s *QueryStats) RecordOutcome(query string, success bool, positions []int) {
	query = cache.NormalizeQuery(query)
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windowLocked(query)
	w.outcomes = pushBounded(w.outcomes, success)
	for _, p := range positions {
		if p > 0 {
			w.positions = pushBounded(w.positions, p)
		}
	}
}

// RecordResultAge records the average age of the results shown for query.
func (s *QueryStats) RecordResultAge(query string, age time.Duration) {
	if age < 0 {
		return
	}
	query = cache.NormalizeQuery(query)
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windowLocked(query)
	w.ages = pushBounded(w.ages, age)
}

// Get returns the statistics for query.
func (s *QueryStats) Get(query string) QueryStat {
	query = cache.NormalizeQuery(query)
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows.Get(query)
	if !ok {
		return QueryStat{}
	}

	st := QueryStat{Observations: len(w.outcomes), ageSamples: len(w.ages)}
	if n := len(w.outcomes); n > 0 {
		succeeded := 0
		for _, o := range w.outcomes {
			if o {
				succeeded++
			}
		}
		st.SuccessRate = float64(succeeded) / float64(n)
	}
	if n := len(w.positions); n > 0 {
		sum := 0
		for _, p := range w.positions {
			sum += p
		}
		st.AvgClickPosition = float64(sum) / float64(n)
	}
	if n := len(w.ages); n > 0 {
		var sum time.Duration
		for _, a := range w.ages {
			sum += a
		}
		st.AvgResultAge = sum / time.Duration(n)
	}
	return st
}

// Prune drops expired query windows.
func (s *QueryStats) Prune() int {
	return s.windows.EvictExpired()
}

func pushBounded[T any](list []T, v T) []T {
	list = append(list, v)
	if len(list) > statsWindow {
		list = list[len(list)-statsWindow:]
	}
	return list
}

// Optimizer adjusts scoring weights for a (query, user) pair from feedback
// and query statistics. Results are memoized for an hour, and the most recent
// result per pair is kept so later rankings can use it.
type Optimizer struct {
	stats  *QueryStats
	memo   *cache.Memory[weights.ScoringWeights]
	latest *cache.Memory[weights.ScoringWeights]
}

// NewOptimizer creates an Optimizer reading from stats.
func NewOptimizer(stats *QueryStats, ttl time.Duration, capacity int) *Optimizer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if capacity <= 0 {
		capacity = 10000
	}
	return &Optimizer{
		stats:  stats,
		memo:   cache.NewMemory[weights.ScoringWeights](capacity, ttl),
		latest: cache.NewMemory[weights.ScoringWeights](capacity, ttl),
	}
}

// Optimize applies the adjustment rules in order, each one renormalizing:
//
//  1. satisfaction below 0.7 raises personalization by 0.05, up to 0.3
//  2. an average click position beyond 5 raises relevance by 0.1, up to 0.6
//  3. a query success rate below 0.6 raises popularity by 0.1, up to 0.5
//  4. an average result age over 30 days raises recency by 0.05, up to 0.4
//
//nolint:gocritic // ScoringWeights is a small value type
func (o *Optimizer) Optimize(query, userID string, current weights.ScoringWeights, fb *Feedback) weights.ScoringWeights {
	current = weights.Normalize(current)
	memoKey := optimizeKey(query, userID, current, fb)
	if w, ok := o.memo.Get(memoKey); ok {
		o.latest.Set(pairKey(query, userID), w)
		return w
	}

	w := current
	if fb != nil && fb.Satisfaction != nil && *fb.Satisfaction < lowSatisfaction {
		w = weights.Boost(w, weights.Personalization, personalizationStep, personalizationCap)
	}
	if avg, ok := fb.avgClickPosition(); ok && avg > deepClickPosition {
		w = weights.Boost(w, weights.Relevance, relevanceStep, relevanceCap)
	}

	stat := o.stats.Get(query)
	if stat.Observations > 0 && stat.SuccessRate < lowSuccessRate {
		w = weights.Boost(w, weights.Popularity, popularityStep, popularityCap)
	}
	if stat.ageSamples > 0 && stat.AvgResultAge > staleResultAge {
		w = weights.Boost(w, weights.Recency, recencyStep, recencyCap)
	}

	w = weights.Normalize(w)
	o.memo.Set(memoKey, w)
	o.latest.Set(pairKey(query, userID), w)
	return w
}

// Latest returns the most recent optimized weights for the pair.
func (o *Optimizer) Latest(query, userID string) (weights.ScoringWeights, bool) {
	return o.latest.Get(pairKey(query, userID))
}

// ForgetUser drops every optimized result for userID.
func (o *Optimizer) ForgetUser(userID string) {
	if userID == "" {
		return
	}
	prefix := userKeyPrefix(userID)
	match := func(key string, _ weights.ScoringWeights) bool {
		return strings.HasPrefix(key, prefix)
	}
	o.latest.DeleteFunc(match)
	o.memo.DeleteFunc(match)
}

// Prune drops expired memoized results.
func (o *Optimizer) Prune() int {
	return o.memo.EvictExpired() + o.latest.EvictExpired()
}

// pairKey is injective over (query, user): both parts are length-prefixed.
func pairKey(query, userID string) string {
	q := cache.NormalizeQuery(query)
	return userKeyPrefix(userID) + strconv.Itoa(len(q)) + ":" + q
}

func userKeyPrefix(userID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID + "|"
}

//nolint:gocritic // ScoringWeights is a small value type
func optimizeKey(query, userID string, w weights.ScoringWeights, fb *Feedback) string {
	var b strings.Builder
	b.WriteString(pairKey(query, userID))
	fmt.Fprintf(&b, "|%.6f,%.6f,%.6f,%.6f", w.Relevance, w.Popularity, w.Recency, w.Personalization)
	if fb != nil {
		if fb.Satisfaction != nil {
			fmt.Fprintf(&b, "|s=%.4f", *fb.Satisfaction)
		}
		if avg, ok := fb.avgClickPosition(); ok {
			fmt.Fprintf(&b, "|p=%.4f", avg)
		}
	}
	return b.String()
}
