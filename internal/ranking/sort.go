// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package ranking

import (
	"sort"
	"time"

	"github.com/tomtom215/catalogrank/internal/popularity"
)

// sortItem carries what the comparators read for one candidate.
type sortItem struct {
	ranked       RankedCandidate
	lastAccessed time.Time
}

// compareFunc returns a negative number when a sorts before b, positive when
// after, and zero when the mode cannot tell them apart.
type compareFunc func(a, b *sortItem) int

func comparatorFor(mode SortMode) compareFunc {
	switch mode {
	case SortPopularity:
		return func(a, b *sortItem) int {
			return cmpDesc(a.ranked.Scores.Popularity, b.ranked.Scores.Popularity)
		}
	case SortRecency:
		return func(a, b *sortItem) int {
			return cmpTimeDesc(a.accessed(), b.accessed())
		}
	case SortCreated:
		return func(a, b *sortItem) int {
			return cmpTimeDesc(a.ranked.Candidate.CreatedAt, b.ranked.Candidate.CreatedAt)
		}
	case SortQuality:
		return func(a, b *sortItem) int {
			qa, qb := a.ranked.Candidate.QualityScore, b.ranked.Candidate.QualityScore
			switch {
			case qa == nil && qb == nil:
				return 0
			case qa == nil:
				return 1
			case qb == nil:
				return -1
			}
			return cmpDesc(*qa, *qb)
		}
	default:
		return func(a, b *sortItem) int {
			return cmpDesc(a.ranked.Scores.Final, b.ranked.Scores.Final)
		}
	}
}

// accessed is the last interaction time, falling back to the asset's own
// update time.
func (s *sortItem) accessed() time.Time {
	if !s.lastAccessed.IsZero() {
		return s.lastAccessed
	}
	return s.ranked.Candidate.UpdatedAt
}

// order sorts items for mode, breaking ties by raw relevance and then ID, and
// assigns 1-based ranks.
func order(items []sortItem, mode SortMode) []RankedCandidate {
	primary := comparatorFor(mode)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i], &items[j]
		if c := primary(a, b); c != 0 {
			return c < 0
		}
		if c := cmpDesc(a.ranked.Candidate.RawRelevance, b.ranked.Candidate.RawRelevance); c != 0 {
			return c < 0
		}
		return a.ranked.Candidate.ID < b.ranked.Candidate.ID
	})

	out := make([]RankedCandidate, len(items))
	for i := range items {
		out[i] = items[i].ranked
		out[i].Rank = i + 1
	}
	return out
}

func newSortItem(c *Candidate, scores SortingScores, ap *popularity.AssetPopularity) sortItem {
	it := sortItem{ranked: RankedCandidate{Candidate: *c, Scores: scores}}
	if ap != nil {
		it.lastAccessed = ap.LastAccessed
	}
	return it
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func cmpTimeDesc(a, b time.Time) int {
	switch {
	case a.After(b):
		return -1
	case a.Before(b):
		return 1
	default:
		return 0
	}
}
