// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package cache

import (
	"testing"
	"time"
)

func TestTTLPolicy(t *testing.T) {
	base := 5 * time.Minute
	p := DefaultTTLPolicy(base)

	tests := []struct {
		name       string
		mode       string
		userScoped bool
		count      int64
		want       time.Duration
	}{
		{"plain", "relevance", false, 0, base},
		{"complex mode doubles", "personalized", false, 0, 2 * base},
		{"popular query triples", "relevance", false, 11, 3 * base},
		{"threshold is exclusive", "relevance", false, 10, base},
		{"both compose", "personalized", false, 50, 6 * base},
		{"user scope caps", "personalized", true, 50, base},
		{"user scope plain", "relevance", true, 0, base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.TTL(tt.mode, tt.userScoped, tt.count); got != tt.want {
				t.Errorf("TTL = %v, want %v", got, tt.want)
			}
		})
	}
}
