// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package api

import (
	"time"

	"github.com/tomtom215/catalogrank/internal/interaction"
	"github.com/tomtom215/catalogrank/internal/ranking"
	"github.com/tomtom215/catalogrank/internal/weights"
)

// RankRequest is the body of POST /api/v1/rank. An empty sort_mode means
// relevance.
type RankRequest struct {
	Candidates []ranking.Candidate     `json:"candidates" validate:"required,min=1,dive"`
	Query      string                  `json:"query" validate:"max=1024"`
	SortMode   string                  `json:"sort_mode,omitempty"`
	UserID     string                  `json:"user_id,omitempty" validate:"max=256"`
	SessionID  string                  `json:"session_id,omitempty" validate:"max=256"`
	Weights    *weights.ScoringWeights `json:"weights,omitempty"`
}

// FeedbackEvent is one interaction reported in a feedback request.
type FeedbackEvent struct {
	Kind     *interaction.Kind `json:"kind" validate:"required"`
	AssetID  string            `json:"asset_id" validate:"required,max=256"`
	Category string            `json:"category,omitempty"`
	Type     string            `json:"type,omitempty"`
	Tags     []string          `json:"tags,omitempty" validate:"max=64"`
	Position int               `json:"position,omitempty" validate:"gte=0"`
	At       time.Time         `json:"at,omitempty"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	UserID         string          `json:"user_id" validate:"required,max=256"`
	SessionID      string          `json:"session_id,omitempty" validate:"max=256"`
	Query          string          `json:"query" validate:"max=1024"`
	SortMode       string          `json:"sort_mode,omitempty"`
	Events         []FeedbackEvent `json:"events" validate:"max=1000,dive"`
	Satisfaction   *float64        `json:"satisfaction,omitempty" validate:"omitempty,gte=0,lte=1"`
	ClickPositions []int           `json:"click_positions,omitempty" validate:"max=100,dive,gte=1"`
}

// FeedbackResponse returns the weights the next ranking for the
// (query, user) pair will use.
type FeedbackResponse struct {
	Weights weights.ScoringWeights `json:"weights"`
}

func parseSortMode(s string) (ranking.SortMode, error) {
	if s == "" {
		return ranking.SortRelevance, nil
	}
	return ranking.ParseSortMode(s)
}

func (r *RankRequest) toRanking() (ranking.Request, error) {
	mode, err := parseSortMode(r.SortMode)
	if err != nil {
		return ranking.Request{}, err
	}
	return ranking.Request{
		Candidates: r.Candidates,
		Query:      r.Query,
		SortMode:   mode,
		UserID:     r.UserID,
		SessionID:  r.SessionID,
		Weights:    r.Weights,
	}, nil
}

func (r *FeedbackRequest) toRanking() (ranking.FeedbackRequest, error) {
	mode, err := parseSortMode(r.SortMode)
	if err != nil {
		return ranking.FeedbackRequest{}, err
	}
	events := make([]interaction.Event, len(r.Events))
	for i := range r.Events {
		ev := &r.Events[i]
		events[i] = interaction.Event{
			UserID:    r.UserID,
			SessionID: r.SessionID,
			Kind:      *ev.Kind,
			Asset: interaction.AssetMeta{
				ID:       ev.AssetID,
				Category: ev.Category,
				Type:     ev.Type,
				Tags:     ev.Tags,
			},
			Query:    r.Query,
			Position: ev.Position,
			At:       ev.At,
		}
	}
	return ranking.FeedbackRequest{
		UserID:         r.UserID,
		SessionID:      r.SessionID,
		Query:          r.Query,
		SortMode:       mode,
		Events:         events,
		Satisfaction:   r.Satisfaction,
		ClickPositions: r.ClickPositions,
	}, nil
}
