// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package behavior

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/tomtom215/catalogrank/internal/interaction"
)

const (
	maxPreferred       = 5
	minPreferenceScore = 2.0
	minTagLength       = 3
	maxInterestTags    = 50
)

// SearchEvent is one search a user ran.
type SearchEvent struct {
	Query       string    `json:"query"`
	SortMode    string    `json:"sort_mode"`
	ResultCount int       `json:"result_count"`
	SessionID   string    `json:"session_id,omitempty"`
	At          time.Time `json:"at"`
}

// PersonalizationConfig is the derived per-user personalization state.
type PersonalizationConfig struct {
	UserID string `json:"user_id"`

	// SearchHistory is most-recent-first.
	SearchHistory []SearchEvent `json:"search_history"`

	PreferredCategories []string `json:"preferred_categories"`
	PreferredTypes      []string `json:"preferred_types"`

	// InterestTags maps a tag to its relative weight in (0, 1].
	InterestTags map[string]float64 `json:"interest_tags"`

	// InteractionWeights is the weighted interaction total per kind.
	InteractionWeights map[string]float64 `json:"interaction_weights"`

	UpdatedAt time.Time `json:"updated_at"`
}

// neutralConfig is returned for users without recorded behavior.
func neutralConfig(userID string) *PersonalizationConfig {
	return &PersonalizationConfig{
		UserID:             userID,
		SearchHistory:      []SearchEvent{},
		InterestTags:       map[string]float64{},
		InteractionWeights: map[string]float64{},
	}
}

func (p *PersonalizationConfig) clone() *PersonalizationConfig {
	out := *p
	out.SearchHistory = append([]SearchEvent(nil), p.SearchHistory...)
	out.PreferredCategories = append([]string(nil), p.PreferredCategories...)
	out.PreferredTypes = append([]string(nil), p.PreferredTypes...)
	out.InterestTags = make(map[string]float64, len(p.InterestTags))
	for k, v := range p.InterestTags {
		out.InterestTags[k] = v
	}
	out.InteractionWeights = make(map[string]float64, len(p.InteractionWeights))
	for k, v := range p.InteractionWeights {
		out.InteractionWeights[k] = v
	}
	return &out
}

func (p *PersonalizationConfig) prefersCategory(c string) bool {
	return containsFold(p.PreferredCategories, c)
}

func (p *PersonalizationConfig) prefersType(t string) bool {
	return containsFold(p.PreferredTypes, t)
}

// derive builds the personalization state from a user's raw events.
func derive(userID string, searches []SearchEvent, interactions map[string][]interaction.Event, now time.Time) *PersonalizationConfig {
	cfg := neutralConfig(userID)
	cfg.SearchHistory = append(cfg.SearchHistory, searches...)
	cfg.UpdatedAt = now

	categories := make(map[string]float64)
	types := make(map[string]float64)
	tags := make(map[string]float64)

	for _, s := range searches {
		for _, tok := range queryTokens(s.Query) {
			tags[tok]++
		}
	}

	for _, events := range interactions {
		for i := range events {
			e := &events[i]
			w := e.Kind.Weight()
			cfg.InteractionWeights[e.Kind.String()] += w
			if c := strings.ToLower(e.Asset.Category); c != "" {
				categories[c] += w
			}
			if t := strings.ToLower(e.Asset.Type); t != "" {
				types[t] += w
			}
			for _, tag := range e.Asset.Tags {
				if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
					tags[tag] += w
				}
			}
		}
	}

	cfg.PreferredCategories = topKeys(categories, maxPreferred, minPreferenceScore)
	cfg.PreferredTypes = topKeys(types, maxPreferred, minPreferenceScore)
	cfg.InterestTags = normalizeTags(tags)
	return cfg
}

// topKeys returns up to n keys scoring at least min, highest first.
func topKeys(scores map[string]float64, n int, minScore float64) []string {
	keys := make([]string, 0, len(scores))
	for k, v := range scores {
		if v >= minScore {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// normalizeTags keeps the strongest tags and scales them by the maximum.
func normalizeTags(raw map[string]float64) map[string]float64 {
	keys := topKeys(raw, maxInterestTags, 0)
	out := make(map[string]float64, len(keys))
	if len(keys) == 0 {
		return out
	}
	top := raw[keys[0]]
	if top <= 0 {
		return out
	}
	for _, k := range keys {
		out[k] = raw[k] / top
	}
	return out
}

func queryTokens(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTagLength {
			out = append(out, f)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
