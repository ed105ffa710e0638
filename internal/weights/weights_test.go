// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package weights

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

func TestDefault(t *testing.T) {
	d := Default()
	if !Validate(d) {
		t.Fatalf("default weights do not validate: %v", d)
	}
	if d.Relevance != 0.4 || d.Popularity != 0.3 || d.Recency != 0.2 || d.Personalization != 0.1 {
		t.Errorf("unexpected default weights: %v", d)
	}
	if !d.IsDefault() {
		t.Error("Default().IsDefault() = false")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   ScoringWeights
		want ScoringWeights
	}{
		{
			name: "sum 1.2",
			in:   ScoringWeights{0.5, 0.3, 0.3, 0.1},
			want: ScoringWeights{0.4167, 0.25, 0.25, 0.0833},
		},
		{
			name: "already normalized",
			in:   ScoringWeights{0.25, 0.25, 0.25, 0.25},
			want: ScoringWeights{0.25, 0.25, 0.25, 0.25},
		},
		{
			name: "all zero falls back to default",
			in:   ScoringWeights{},
			want: Default(),
		},
		{
			name: "negative treated as zero",
			in:   ScoringWeights{1, -1, 1, 0},
			want: ScoringWeights{0.5, 0, 0.5, 0},
		},
		{
			name: "NaN treated as zero",
			in:   ScoringWeights{math.NaN(), 1, 0, 0},
			want: ScoringWeights{0, 1, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			for _, dim := range Dimensions {
				if !approx(got.Get(dim), tt.want.Get(dim)) {
					t.Errorf("%s = %.4f, want %.4f", dim, got.Get(dim), tt.want.Get(dim))
				}
			}
			if !Validate(got) {
				t.Errorf("normalized weights do not validate: %v", got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   ScoringWeights
		want bool
	}{
		{"exact", ScoringWeights{0.4, 0.3, 0.2, 0.1}, true},
		{"within tolerance", ScoringWeights{0.4, 0.3, 0.2, 0.1005}, true},
		{"outside tolerance", ScoringWeights{0.4, 0.3, 0.2, 0.102}, false},
		{"sum 1.2", ScoringWeights{0.5, 0.3, 0.3, 0.1}, false},
		{"zero", ScoringWeights{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.in); got != tt.want {
				t.Errorf("Validate(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	if _, err := Sanitize(ScoringWeights{}); !errors.Is(err, ErrUnnormalizable) {
		t.Errorf("all zero: got %v, want ErrUnnormalizable", err)
	}
	if _, err := Sanitize(ScoringWeights{0.5, -0.1, 0.3, 0.3}); !errors.Is(err, ErrInvalid) {
		t.Errorf("negative: got %v, want ErrInvalid", err)
	}
	if _, err := Sanitize(ScoringWeights{math.Inf(1), 0, 0, 0}); !errors.Is(err, ErrInvalid) {
		t.Errorf("infinite: got %v, want ErrInvalid", err)
	}

	got, err := Sanitize(ScoringWeights{2, 2, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(got.Relevance, 0.5) || !approx(got.Popularity, 0.5) {
		t.Errorf("Sanitize = %v, want {0.5 0.5 0 0}", got)
	}
}

func TestBoost(t *testing.T) {
	t.Run("raises target and keeps invariant", func(t *testing.T) {
		got := Boost(Default(), Personalization, 0.2, 0.5, Relevance, Popularity)
		if !approx(got.Personalization, 0.3) {
			t.Errorf("personalization = %.4f, want 0.3", got.Personalization)
		}
		if !approx(got.Recency, 0.2) {
			t.Errorf("recency changed to %.4f, want 0.2", got.Recency)
		}
		if got.Relevance >= 0.4 || got.Popularity >= 0.3 {
			t.Errorf("donors not reduced: %v", got)
		}
		if !Validate(got) {
			t.Errorf("boosted weights do not validate: %v", got)
		}
	})

	t.Run("caps at limit", func(t *testing.T) {
		got := Boost(Default(), Relevance, 0.5, 0.6)
		if !approx(got.Relevance, 0.6) {
			t.Errorf("relevance = %.4f, want 0.6", got.Relevance)
		}
	})

	t.Run("already above limit is unchanged", func(t *testing.T) {
		in := ScoringWeights{0.7, 0.1, 0.1, 0.1}
		got := Boost(in, Relevance, 0.1, 0.6)
		if !approx(got.Relevance, 0.7) {
			t.Errorf("relevance = %.4f, want 0.7", got.Relevance)
		}
	})

	t.Run("empty donor pool is a no-op", func(t *testing.T) {
		in := ScoringWeights{0.5, 0, 0.5, 0}
		got := Boost(in, Relevance, 0.1, 0.9, Popularity)
		if !approx(got.Relevance, 0.5) {
			t.Errorf("relevance = %.4f, want 0.5", got.Relevance)
		}
	})
}

// TestInvariantUnderRandomAdjustments checks that arbitrary boost sequences
// always produce non-negative weights summing to 1.
func TestInvariantUnderRandomAdjustments(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := Default()
	for i := 0; i < 5000; i++ {
		dim := Dimensions[rng.Intn(len(Dimensions))]
		w = Boost(w, dim, rng.Float64()*0.3, rng.Float64(), Dimensions[rng.Intn(len(Dimensions))])
		if rng.Intn(10) == 0 {
			w = Normalize(w.With(Dimensions[rng.Intn(len(Dimensions))], rng.Float64()*3-1))
		}
		if !Validate(w) {
			t.Fatalf("iteration %d: weights do not validate: %v (sum %.6f)", i, w, w.Sum())
		}
		for _, d := range Dimensions {
			if w.Get(d) < 0 {
				t.Fatalf("iteration %d: %s is negative: %v", i, d, w)
			}
		}
	}
}
