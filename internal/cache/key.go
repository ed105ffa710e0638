// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/catalogrank/internal/weights"
)

// keyPrefix namespaces ranking entries in the shared tier.
const keyPrefix = "rank"

// KeyParams is the canonical tuple a ranking cache key is derived from.
type KeyParams struct {
	Query    string
	SortMode string
	UserID   string

	// Weights is included in the key only when set and, once normalized,
	// different from the default weights, so the common case shares entries.
	Weights *weights.ScoringWeights
}

// keyPayload is the stable serialized form hashed into the key. Field order
// is fixed by the struct definition.
type keyPayload struct {
	Query    string                  `json:"q"`
	SortMode string                  `json:"s"`
	UserID   string                  `json:"u,omitempty"`
	Weights  *weights.ScoringWeights `json:"w,omitempty"`
}

// DeriveKey returns a stable cache key for p. Queries that differ only in
// case or whitespace map to the same key.
func DeriveKey(p KeyParams) string {
	payload := keyPayload{
		Query:    NormalizeQuery(p.Query),
		SortMode: strings.ToLower(p.SortMode),
		UserID:   p.UserID,
	}
	if p.Weights != nil {
		if w := weights.Normalize(*p.Weights); !w.IsDefault() {
			// Rounded so float noise from re-normalizing does not split entries.
			w = weights.ScoringWeights{
				Relevance:       round6(w.Relevance),
				Popularity:      round6(w.Popularity),
				Recency:         round6(w.Recency),
				Personalization: round6(w.Personalization),
			}
			payload.Weights = &w
		}
	}

	// Marshal of a flat struct of strings and floats cannot fail.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)

	return keyPrefix + ":" + payload.SortMode + ":" + hex.EncodeToString(sum[:8])
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NormalizeQuery lowercases q and collapses runs of whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
