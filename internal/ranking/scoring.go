// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package ranking

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tomtom215/catalogrank/internal/popularity"
	"github.com/tomtom215/catalogrank/internal/weights"
)

const (
	// DefaultRelevanceNorm is the raw relevance that maps to a relevance
	// score of 1.
	DefaultRelevanceNorm = 50.0

	// NeutralScore is used for missing recency and personalization data and
	// for candidates whose scoring failed.
	NeutralScore = 0.5

	maxQualityScore = 100.0
)

// ScoreInput is everything needed to score one candidate.
type ScoreInput struct {
	Candidate *Candidate

	// Popularity is nil when the asset has no interaction data.
	Popularity *popularity.AssetPopularity

	// Personalization is nil without user context.
	Personalization *float64

	Weights weights.ScoringWeights

	// Now anchors the popularity access-recency bonus.
	Now time.Time
}

// Scorer computes SortingScores. It holds no mutable state.
type Scorer struct {
	relevanceNorm float64
}

// NewScorer returns a Scorer. A norm of 1 or less uses DefaultRelevanceNorm.
func NewScorer(relevanceNorm float64) Scorer {
	if relevanceNorm <= 1 || math.IsNaN(relevanceNorm) || math.IsInf(relevanceNorm, 0) {
		relevanceNorm = DefaultRelevanceNorm
	}
	return Scorer{relevanceNorm: relevanceNorm}
}

// Score combines the four sub-scores with in.Weights. The result depends only
// on its input.
//
//nolint:gocritic // ScoreInput is passed by value so callers cannot share it
func (s Scorer) Score(in ScoreInput) SortingScores {
	w := weights.Normalize(in.Weights)

	sc := SortingScores{
		Relevance:       s.Relevance(in.Candidate.RawRelevance),
		Popularity:      clamp01(popularity.Score(in.Popularity, in.Now)),
		Recency:         Recency(in.Candidate.QualityScore),
		Personalization: NeutralScore,
	}
	if in.Personalization != nil {
		sc.Personalization = clamp01(*in.Personalization)
	}

	sc.Final = clamp01(
		sc.Relevance*w.Relevance +
			sc.Popularity*w.Popularity +
			sc.Recency*w.Recency +
			sc.Personalization*w.Personalization)
	sc.Explanation = explain(sc, w)
	return sc
}

// Relevance maps a raw backend score to [0, 1] on a log scale.
func (s Scorer) Relevance(raw float64) float64 {
	if raw <= 0 || math.IsNaN(raw) {
		return 0
	}
	return clamp01(math.Log(raw+1) / math.Log(s.relevanceNorm))
}

// Recency derives the recency sub-score from the optional quality score.
func Recency(quality *float64) float64 {
	if quality == nil {
		return NeutralScore
	}
	return clamp01(*quality / maxQualityScore)
}

// NeutralScores is assigned to a candidate that could not be scored.
func NeutralScores(note string) SortingScores {
	return SortingScores{
		Relevance:       NeutralScore,
		Popularity:      NeutralScore,
		Recency:         NeutralScore,
		Personalization: NeutralScore,
		Final:           NeutralScore,
		Explanation:     note,
	}
}

// explain names the dimension contributing most to the final score and
// lists every sub-score.
//
//nolint:gocritic // SortingScores and ScoringWeights are small value types
func explain(sc SortingScores, w weights.ScoringWeights) string {
	subs := map[weights.Dimension]float64{
		weights.Relevance:       sc.Relevance,
		weights.Popularity:      sc.Popularity,
		weights.Recency:         sc.Recency,
		weights.Personalization: sc.Personalization,
	}

	top, topContribution := weights.Relevance, -1.0
	parts := make([]string, 0, len(weights.Dimensions))
	for _, dim := range weights.Dimensions {
		c := subs[dim] * w.Get(dim)
		if c > topContribution {
			top, topContribution = dim, c
		}
		parts = append(parts, fmt.Sprintf("%s=%.3f", dim, subs[dim]))
	}
	return fmt.Sprintf("top factor: %s; %s", top, strings.Join(parts, " "))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
