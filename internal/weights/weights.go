// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package weights holds the four scoring-dimension weights used by the ranking
// engine and enforces the invariant that they sum to 1.0.
//
// Every weight mutation in the engine goes through Normalize (directly or via
// Boost), so a ScoringWeights value handed to the scorer is always valid.
package weights

import (
	"errors"
	"fmt"
	"math"
)

// Tolerance is the allowed deviation of the weight sum from 1.0.
const Tolerance = 1e-3

var (
	// ErrUnnormalizable is returned when weights cannot be scaled to sum to 1,
	// i.e. every component is zero.
	ErrUnnormalizable = errors.New("weights cannot be normalized: all components are zero")

	// ErrInvalid is returned for negative, NaN or infinite components.
	ErrInvalid = errors.New("weights must be finite and non-negative")
)

// Dimension identifies one of the four scoring dimensions.
type Dimension int

const (
	Relevance Dimension = iota
	Popularity
	Recency
	Personalization
)

// Dimensions lists every dimension in declaration order.
var Dimensions = [...]Dimension{Relevance, Popularity, Recency, Personalization}

// String returns the dimension name.
func (d Dimension) String() string {
	switch d {
	case Relevance:
		return "relevance"
	case Popularity:
		return "popularity"
	case Recency:
		return "recency"
	case Personalization:
		return "personalization"
	default:
		return "unknown"
	}
}

// ScoringWeights defines the relative contribution of each dimension.
type ScoringWeights struct {
	Relevance       float64 `json:"relevance" koanf:"relevance"`
	Popularity      float64 `json:"popularity" koanf:"popularity"`
	Recency         float64 `json:"recency" koanf:"recency"`
	Personalization float64 `json:"personalization" koanf:"personalization"`
}

// Default returns the baseline weights {0.4, 0.3, 0.2, 0.1}.
func Default() ScoringWeights {
	return ScoringWeights{
		Relevance:       0.4,
		Popularity:      0.3,
		Recency:         0.2,
		Personalization: 0.1,
	}
}

// Sum returns the sum of all four components.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w ScoringWeights) Sum() float64 {
	return w.Relevance + w.Popularity + w.Recency + w.Personalization
}

// Get returns the weight for a dimension.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w ScoringWeights) Get(d Dimension) float64 {
	switch d {
	case Relevance:
		return w.Relevance
	case Popularity:
		return w.Popularity
	case Recency:
		return w.Recency
	case Personalization:
		return w.Personalization
	default:
		return 0
	}
}

// With returns a copy with one dimension replaced. The result is not normalized.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w ScoringWeights) With(d Dimension, v float64) ScoringWeights {
	switch d {
	case Relevance:
		w.Relevance = v
	case Popularity:
		w.Popularity = v
	case Recency:
		w.Recency = v
	case Personalization:
		w.Personalization = v
	}
	return w
}

// IsDefault reports whether w equals Default within Tolerance on every component.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w ScoringWeights) IsDefault() bool {
	d := Default()
	for _, dim := range Dimensions {
		if math.Abs(w.Get(dim)-d.Get(dim)) >= Tolerance {
			return false
		}
	}
	return true
}

// String formats the weights for logs and explanations.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w ScoringWeights) String() string {
	return fmt.Sprintf("{relevance:%.4f popularity:%.4f recency:%.4f personalization:%.4f}",
		w.Relevance, w.Popularity, w.Recency, w.Personalization)
}

// Normalize scales all components by 1/sum. Negative and non-finite components
// are treated as zero first, so the result never contains a negative weight.
// If the sum is zero the default weights are returned.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func Normalize(w ScoringWeights) ScoringWeights {
	w = ScoringWeights{
		Relevance:       nonNegative(w.Relevance),
		Popularity:      nonNegative(w.Popularity),
		Recency:         nonNegative(w.Recency),
		Personalization: nonNegative(w.Personalization),
	}

	sum := w.Sum()
	if sum == 0 {
		return Default()
	}

	return ScoringWeights{
		Relevance:       w.Relevance / sum,
		Popularity:      w.Popularity / sum,
		Recency:         w.Recency / sum,
		Personalization: w.Personalization / sum,
	}
}

// Validate reports whether the components sum to 1.0 within Tolerance.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func Validate(w ScoringWeights) bool {
	return math.Abs(w.Sum()-1.0) < Tolerance
}

// Sanitize is the boundary check for caller-supplied weights. Weights with a
// negative or non-finite component return ErrInvalid, all-zero weights return
// ErrUnnormalizable, and anything else is returned normalized.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func Sanitize(w ScoringWeights) (ScoringWeights, error) {
	for _, dim := range Dimensions {
		v := w.Get(dim)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ScoringWeights{}, fmt.Errorf("%s=%v: %w", dim, v, ErrInvalid)
		}
	}
	if w.Sum() == 0 {
		return ScoringWeights{}, ErrUnnormalizable
	}
	return Normalize(w), nil
}

// Boost raises one dimension by delta, never above limit, and takes the
// difference from the donor dimensions in proportion to their current share.
// With no donors every other dimension contributes. A dimension already at or
// above limit is left unchanged. The result is normalized.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func Boost(w ScoringWeights, target Dimension, delta, limit float64, donors ...Dimension) ScoringWeights {
	w = Normalize(w)

	current := w.Get(target)
	if current >= limit || delta <= 0 {
		return w
	}
	next := math.Min(current+delta, limit)
	need := next - current

	if len(donors) == 0 {
		for _, dim := range Dimensions {
			if dim != target {
				donors = append(donors, dim)
			}
		}
	}

	var pool float64
	for _, dim := range donors {
		if dim != target {
			pool += w.Get(dim)
		}
	}
	if pool <= 0 {
		return w
	}
	if need > pool {
		need = pool
		next = current + pool
	}

	scale := (pool - need) / pool
	out := w.With(target, next)
	for _, dim := range donors {
		if dim != target {
			out = out.With(dim, w.Get(dim)*scale)
		}
	}
	return Normalize(out)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
