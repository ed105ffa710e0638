// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"strings"
	"time"
)

// TTLPolicy decides how long a ranking result stays cached.
type TTLPolicy struct {
	// Base is the starting TTL and the cap for user-scoped entries.
	Base time.Duration

	// ComplexModes are sort modes whose results are expensive to compute.
	// Their TTL is multiplied by ComplexFactor.
	ComplexModes  []string
	ComplexFactor float64

	// Queries observed more than PopularThreshold times in the frequency
	// window have their TTL multiplied by PopularFactor.
	PopularThreshold int64
	PopularFactor    float64
}

// DefaultTTLPolicy returns the standard policy for base.
func DefaultTTLPolicy(base time.Duration) TTLPolicy {
	return TTLPolicy{
		Base:             base,
		ComplexModes:     []string{"personalized"},
		ComplexFactor:    2,
		PopularThreshold: 10,
		PopularFactor:    3,
	}
}

// TTL returns the lifetime of an entry for sortMode. queryCount is how often
// the query was seen recently. userScoped entries never outlive Base.
func (p TTLPolicy) TTL(sortMode string, userScoped bool, queryCount int64) time.Duration {
	ttl := float64(p.Base)

	for _, m := range p.ComplexModes {
		if strings.EqualFold(m, sortMode) && p.ComplexFactor > 0 {
			ttl *= p.ComplexFactor
			break
		}
	}
	if p.PopularThreshold > 0 && queryCount > p.PopularThreshold && p.PopularFactor > 0 {
		ttl *= p.PopularFactor
	}

	out := time.Duration(ttl)
	if userScoped && out > p.Base {
		out = p.Base
	}
	return out
}
