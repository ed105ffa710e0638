// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package ranking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/interaction"
	"github.com/tomtom215/catalogrank/internal/weights"
)

var (
	// ErrUnknownSortMode is returned for a sort mode outside the supported set.
	ErrUnknownSortMode = errors.New("unknown sort mode")

	// ErrInvalidWeights is returned when caller-supplied weights are rejected.
	ErrInvalidWeights = errors.New("invalid scoring weights")
)

// SortMode selects how candidates are ordered.
type SortMode string

const (
	SortRelevance    SortMode = "relevance"
	SortPopularity   SortMode = "popularity"
	SortRecency      SortMode = "recency"
	SortQuality      SortMode = "quality"
	SortCreated      SortMode = "created"
	SortPersonalized SortMode = "personalized"
)

// SortModes lists every supported sort mode.
var SortModes = []SortMode{SortRelevance, SortPopularity, SortRecency, SortQuality, SortCreated, SortPersonalized}

// ParseSortMode converts a caller-supplied name to a SortMode. It never
// falls back to a default: an unknown name is an invalid argument.
func ParseSortMode(s string) (SortMode, error) {
	mode := SortMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSortMode, s)
	}
	return mode, nil
}

// Valid reports whether m is a supported sort mode.
func (m SortMode) Valid() bool {
	switch m {
	case SortRelevance, SortPopularity, SortRecency, SortQuality, SortCreated, SortPersonalized:
		return true
	default:
		return false
	}
}

// Scored reports whether the mode runs the multi-dimensional scorer. The
// other modes order candidates with a single-field comparator.
func (m SortMode) Scored() bool {
	return m == SortRelevance || m == SortPersonalized
}

// Candidate is one item being ranked. It is not modified during ranking.
type Candidate struct {
	ID           string  `json:"id" validate:"required"`
	RawRelevance float64 `json:"raw_relevance" validate:"gte=0"`

	// QualityScore is an optional 0-100 maintenance score.
	QualityScore *float64 `json:"quality_score,omitempty" validate:"omitempty,gte=0,lte=100"`

	Category    string    `json:"category,omitempty"`
	Type        string    `json:"type,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Meta returns the metadata the behavior tracker needs.
func (c *Candidate) Meta() interaction.AssetMeta {
	return interaction.AssetMeta{ID: c.ID, Category: c.Category, Type: c.Type, Tags: c.Tags}
}

// SortingScores are the per-candidate scores, each in [0, 1].
type SortingScores struct {
	Relevance       float64 `json:"relevance"`
	Popularity      float64 `json:"popularity"`
	Recency         float64 `json:"recency"`
	Personalization float64 `json:"personalization"`
	Final           float64 `json:"final"`
	Explanation     string  `json:"explanation"`
}

// RankedCandidate is a candidate with its scores and 1-based rank.
type RankedCandidate struct {
	Candidate Candidate     `json:"candidate"`
	Scores    SortingScores `json:"scores"`
	Rank      int           `json:"rank"`
}

// Request is the input to Engine.Rank.
type Request struct {
	Candidates []Candidate
	Query      string
	SortMode   SortMode
	UserID     string
	SessionID  string

	// Weights overrides the engine's weight selection when set.
	Weights *weights.ScoringWeights
}

// Result is the output of Engine.Rank.
type Result struct {
	Items    []RankedCandidate      `json:"items"`
	SortMode SortMode               `json:"sort_mode"`
	Weights  weights.ScoringWeights `json:"weights"`
	Source   cache.Source           `json:"source"`
	CacheKey string                 `json:"cache_key,omitempty"`

	// Degraded is set when ranking fell back to the original order.
	Degraded bool `json:"degraded,omitempty"`
}
