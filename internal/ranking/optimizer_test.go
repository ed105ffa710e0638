// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package ranking

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/catalogrank/internal/weights"
)

func newTestOptimizer() (*Optimizer, *QueryStats) {
	stats := NewQueryStats()
	return NewOptimizer(stats, time.Hour, 100), stats
}

func TestOptimize_LowSatisfactionDeepClicks(t *testing.T) {
	o, _ := newTestOptimizer()
	in := weights.Default()

	got := o.Optimize("rainfall", "u1", in, &Feedback{Satisfaction: floatPtr(0.5), ClickPositions: []int{8, 9}})

	if got.Personalization <= in.Personalization {
		t.Errorf("personalization = %v, want > %v", got.Personalization, in.Personalization)
	}
	if got.Relevance <= in.Relevance {
		t.Errorf("relevance = %v, want > %v", got.Relevance, in.Relevance)
	}
	if !weights.Validate(got) {
		t.Errorf("weights %v do not sum to 1", got)
	}
}

func TestOptimize_Rules(t *testing.T) {
	tests := []struct {
		name  string
		fb    *Feedback
		setup func(*QueryStats)
		check func(t *testing.T, in, got weights.ScoringWeights)
	}{
		{
			name: "no feedback and no history keeps weights",
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if !got.IsDefault() {
					t.Errorf("weights changed to %v", got)
				}
			},
		},
		{
			name: "satisfied user with shallow clicks keeps weights",
			fb:   &Feedback{Satisfaction: floatPtr(0.9), ClickPositions: []int{1, 2}},
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if !got.IsDefault() {
					t.Errorf("weights changed to %v", got)
				}
			},
		},
		{
			name: "click position exactly five does not trigger",
			fb:   &Feedback{ClickPositions: []int{4, 6}},
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if !got.IsDefault() {
					t.Errorf("weights changed to %v", got)
				}
			},
		},
		{
			name: "low satisfaction raises personalization by 0.05",
			fb:   &Feedback{Satisfaction: floatPtr(0.2)},
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if math.Abs(got.Personalization-0.15) > 1e-9 {
					t.Errorf("personalization = %v, want 0.15", got.Personalization)
				}
			},
		},
		{
			name: "low success rate raises popularity",
			setup: func(s *QueryStats) {
				s.RecordOutcome("rainfall", true, nil)
				s.RecordOutcome("rainfall", false, nil)
				s.RecordOutcome("rainfall", false, nil)
			},
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if math.Abs(got.Popularity-0.4) > 1e-9 {
					t.Errorf("popularity = %v, want 0.4", got.Popularity)
				}
			},
		},
		{
			name: "old results raise recency",
			setup: func(s *QueryStats) {
				s.RecordResultAge("Rainfall", 45*24*time.Hour)
			},
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if math.Abs(got.Recency-0.25) > 1e-9 {
					t.Errorf("recency = %v, want 0.25", got.Recency)
				}
			},
		},
		{
			name: "fresh results and good success leave weights alone",
			setup: func(s *QueryStats) {
				s.RecordOutcome("rainfall", true, []int{1})
				s.RecordResultAge("rainfall", 2*24*time.Hour)
			},
			check: func(t *testing.T, in, got weights.ScoringWeights) {
				if !got.IsDefault() {
					t.Errorf("weights changed to %v", got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, stats := newTestOptimizer()
			if tt.setup != nil {
				tt.setup(stats)
			}
			in := weights.Default()
			got := o.Optimize("rainfall", "u1", in, tt.fb)
			if !weights.Validate(got) {
				t.Errorf("weights %v do not sum to 1", got)
			}
			tt.check(t, in, got)
		})
	}
}

func TestOptimize_RespectsCaps(t *testing.T) {
	o, _ := newTestOptimizer()
	w := weights.ScoringWeights{Relevance: 0.6, Popularity: 0.1, Recency: 0.1, Personalization: 0.2}

	got := o.Optimize("q", "u1", w, &Feedback{ClickPositions: []int{20}})
	if math.Abs(got.Relevance-0.6) > 1e-9 {
		t.Errorf("relevance = %v, want capped at 0.6", got.Relevance)
	}
}

func TestOptimize_WeightInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	o, stats := newTestOptimizer()
	w := weights.Default()

	for i := 0; i < 500; i++ {
		if rng.Intn(3) == 0 {
			stats.RecordOutcome("q", rng.Intn(2) == 0, []int{rng.Intn(20) + 1})
		}
		if rng.Intn(4) == 0 {
			stats.RecordResultAge("q", time.Duration(rng.Int63n(int64(90*24*time.Hour))))
		}
		fb := &Feedback{Satisfaction: floatPtr(rng.Float64())}
		for n := rng.Intn(4); n > 0; n-- {
			fb.ClickPositions = append(fb.ClickPositions, rng.Intn(15)+1)
		}

		w = o.Optimize("q", "u1", w, fb)
		if !weights.Validate(w) {
			t.Fatalf("step %d: weights %v do not sum to 1", i, w)
		}
		for _, dim := range weights.Dimensions {
			if w.Get(dim) < 0 {
				t.Fatalf("step %d: negative %s weight in %v", i, dim, w)
			}
		}
	}
}

func TestOptimizer_MemoAndLatest(t *testing.T) {
	o, stats := newTestOptimizer()
	fb := &Feedback{Satisfaction: floatPtr(0.4)}

	first := o.Optimize("q", "u1", weights.Default(), fb)

	// Stats that would change the outcome are ignored while memoized.
	stats.RecordOutcome("q", false, nil)
	second := o.Optimize("q", "u1", weights.Default(), fb)
	if first != second {
		t.Errorf("memoized result changed: %v vs %v", first, second)
	}

	latest, ok := o.Latest("  Q ", "u1")
	if !ok || latest != first {
		t.Errorf("Latest = %v, %v; want %v", latest, ok, first)
	}
	if _, ok := o.Latest("q", "u2"); ok {
		t.Error("Latest leaked across users")
	}

	o.ForgetUser("u1")
	if _, ok := o.Latest("q", "u1"); ok {
		t.Error("ForgetUser did not drop latest weights")
	}
}

func TestOptimizer_KeysDoNotCollide(t *testing.T) {
	if pairKey("a|b", "c") == pairKey("a", "b|c") {
		t.Error("pairs with a separator inside a part share a key")
	}

	o := NewOptimizer(NewQueryStats(), time.Hour, 10000)
	sat := 0.1
	fb := &Feedback{Satisfaction: &sat}
	o.Optimize("roads", "u1|x", weights.Default(), fb)
	o.Optimize("roads|u1|x", "bob", weights.Default(), fb)
	o.Optimize("roads", "x|u1", weights.Default(), fb)

	o.ForgetUser("u1")
	for _, pair := range [][2]string{{"roads", "u1|x"}, {"roads|u1|x", "bob"}, {"roads", "x|u1"}} {
		if _, ok := o.Latest(pair[0], pair[1]); !ok {
			t.Errorf("ForgetUser(u1) dropped weights for query %q user %q", pair[0], pair[1])
		}
	}

	o.ForgetUser("u1|x")
	if _, ok := o.Latest("roads", "u1|x"); ok {
		t.Error("ForgetUser did not drop the matching user")
	}
	if _, ok := o.Latest("roads|u1|x", "bob"); !ok {
		t.Error("ForgetUser dropped another user whose query contains the user ID")
	}
	if o.memo.Len() != 2 {
		t.Errorf("memo entries = %d, want 2 after forgetting one user", o.memo.Len())
	}
}

func TestQueryStats(t *testing.T) {
	s := NewQueryStats()
	if got := s.Get("none"); got.Observations != 0 {
		t.Errorf("empty stats = %+v", got)
	}

	for i := 0; i < 150; i++ {
		s.RecordOutcome("q", i >= 100, []int{i%10 + 1, 0, -1})
	}
	got := s.Get("q")
	if got.Observations != 100 {
		t.Errorf("observations = %d, want window of 100", got.Observations)
	}
	if got.SuccessRate != 0.5 {
		t.Errorf("success rate = %v, want 0.5", got.SuccessRate)
	}
	if got.AvgClickPosition != 5.5 {
		t.Errorf("avg click position = %v, want 5.5", got.AvgClickPosition)
	}

	s.RecordResultAge("q", time.Hour)
	s.RecordResultAge("q", 3*time.Hour)
	s.RecordResultAge("q", -time.Hour)
	if got := s.Get("q"); got.AvgResultAge != 2*time.Hour {
		t.Errorf("avg result age = %v, want 2h", got.AvgResultAge)
	}
}
