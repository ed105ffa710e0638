// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/logging"
	"github.com/tomtom215/catalogrank/internal/ranking"
	"github.com/tomtom215/catalogrank/internal/validation"
	"github.com/tomtom215/catalogrank/internal/weights"
)

// maxBodyBytes bounds request bodies. A thousand fully described
// candidates fit comfortably.
const maxBodyBytes = 8 << 20

// RankingService is the subset of *ranking.Engine the handlers use.
type RankingService interface {
	Rank(ctx context.Context, req ranking.Request) (*ranking.Result, error)
	RecordFeedback(ctx context.Context, fb ranking.FeedbackRequest) (weights.ScoringWeights, error)
	Preferences(ctx context.Context, userID string) (*ranking.UserPreferences, error)
	ResetUser(ctx context.Context, userID string) error
	CachePerformanceMetrics() cache.PerformanceMetrics
}

// Handler serves the ranking API.
type Handler struct {
	engine        RankingService
	maxCandidates int
	logger        zerolog.Logger
}

// NewHandler creates a Handler. maxCandidates bounds the candidate list of
// a single rank request.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewHandler(engine RankingService, maxCandidates int, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:        engine,
		maxCandidates: maxCandidates,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

// Rank handles POST /api/v1/rank.
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body RankRequest
	if !decodeAndValidate(rw, w, r, &body) {
		return
	}
	if len(body.Candidates) > h.maxCandidates {
		rw.ValidationError(fmt.Sprintf("candidates must have at most %d items", h.maxCandidates), nil)
		return
	}
	req, err := body.toRanking()
	if err != nil {
		writeEngineError(rw, err)
		return
	}

	result, err := h.engine.Rank(r.Context(), req)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(result)
}

// Feedback handles POST /api/v1/feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body FeedbackRequest
	if !decodeAndValidate(rw, w, r, &body) {
		return
	}
	fb, err := body.toRanking()
	if err != nil {
		writeEngineError(rw, err)
		return
	}

	optimized, err := h.engine.RecordFeedback(r.Context(), fb)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(FeedbackResponse{Weights: optimized})
}

// CacheMetrics handles GET /api/v1/cache/metrics.
func (h *Handler) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.CachePerformanceMetrics())
}

// Preferences handles GET /api/v1/users/{userID}/preferences.
func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := userIDParam(rw, r)
	if !ok {
		return
	}

	prefs, err := h.engine.Preferences(r.Context(), userID)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(prefs)
}

// ResetUser handles DELETE /api/v1/users/{userID}.
func (h *Handler) ResetUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := userIDParam(rw, r)
	if !ok {
		return
	}

	if err := h.engine.ResetUser(r.Context(), userID); err != nil {
		writeEngineError(rw, err)
		return
	}
	h.logger.Info().Str("user_id", logging.SanitizeUserID(userID)).Msg("User reset via API")
	rw.NoContent()
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

func userIDParam(rw *ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" || len(userID) > 256 {
		rw.BadRequest("userID must be between 1 and 256 characters")
		return "", false
	}
	return userID, true
}

// decodeAndValidate reads a JSON body into dst and validates it. It writes
// the error response and returns false on failure.
func decodeAndValidate(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			rw.ValidationError(verr.Error(), verr.Fields)
			return false
		}
		rw.ValidationError(err.Error(), nil)
		return false
	}
	return true
}

// writeEngineError maps engine errors to HTTP responses.
func writeEngineError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, ranking.ErrUnknownSortMode):
		rw.Error(http.StatusBadRequest, ErrCodeUnknownSortMode, err.Error())
	case errors.Is(err, ranking.ErrInvalidWeights):
		rw.Error(http.StatusBadRequest, ErrCodeInvalidWeights, err.Error())
	case errors.Is(err, context.Canceled):
		rw.Error(StatusClientClosedRequest, ErrCodeRequestCancelled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "request timed out")
	default:
		rw.InternalError("request failed", err)
	}
}
