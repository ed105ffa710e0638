// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package popularity turns per-asset interaction counters into a bounded
// popularity score and keeps recently used counters cached in memory.
package popularity

import (
	"math"
	"time"

	"github.com/tomtom215/catalogrank/internal/interaction"
)

const (
	// DefaultScore is used for assets with no interaction data, so novel
	// assets are ranked low but not zeroed out.
	DefaultScore = 0.1

	// saturation is the weighted interaction total at which the volume
	// component reaches its maximum.
	saturation = 1000.0

	volumeMax     = 0.8
	ctrBonusMax   = 0.2
	recencyMax    = 0.1
	recencyWindow = 7 * 24 * time.Hour
)

// AssetPopularity is the rolling interaction summary for one asset.
type AssetPopularity struct {
	AssetID          string    `json:"asset_id"`
	ViewCount        int64     `json:"view_count"`
	DownloadCount    int64     `json:"download_count"`
	BookmarkCount    int64     `json:"bookmark_count"`
	ShareCount       int64     `json:"share_count"`
	SearchCount      int64     `json:"search_count"`
	ClickCount       int64     `json:"click_count"`
	ClickThroughRate float64   `json:"click_through_rate"`
	LastAccessed     time.Time `json:"last_accessed"`

	// PopularityScore is Score evaluated at RefreshedAt.
	PopularityScore float64   `json:"popularity_score"`
	RefreshedAt     time.Time `json:"refreshed_at"`
}

// WeightedInteractions sums the five counters using the interaction weight table.
func (p *AssetPopularity) WeightedInteractions() float64 {
	return float64(p.ViewCount)*interaction.View.Weight() +
		float64(p.DownloadCount)*interaction.Download.Weight() +
		float64(p.BookmarkCount)*interaction.Bookmark.Weight() +
		float64(p.ShareCount)*interaction.Share.Weight() +
		float64(p.SearchCount)*interaction.Search.Weight()
}

// ClickThroughRate returns clicks per search appearance, capped at 1.
func ClickThroughRate(clicks, searches int64) float64 {
	if searches <= 0 || clicks <= 0 {
		return 0
	}
	return math.Min(1, float64(clicks)/float64(searches))
}

// Score computes the popularity score of p at now. A nil p returns DefaultScore.
//
// The score is a log-scaled volume component in [0, 0.8], plus a
// click-through bonus of up to 0.2, plus an access recency bonus of up to 0.1
// decaying linearly to zero over seven days, clamped to [0, 1].
func Score(p *AssetPopularity, now time.Time) float64 {
	if p == nil {
		return DefaultScore
	}

	volume := 0.0
	if w := p.WeightedInteractions(); w > 0 {
		volume = volumeMax * math.Min(1, math.Log1p(w)/math.Log1p(saturation))
	}

	ctr := ctrBonusMax * clamp01(p.ClickThroughRate)

	recency := 0.0
	if !p.LastAccessed.IsZero() {
		age := now.Sub(p.LastAccessed)
		if age < 0 {
			age = 0
		}
		recency = math.Max(0, recencyMax*(1-float64(age)/float64(recencyWindow)))
	}

	return clamp01(volume + ctr + recency)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
