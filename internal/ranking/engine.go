// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/catalogrank/internal/behavior"
	"github.com/tomtom215/catalogrank/internal/cache"
	"github.com/tomtom215/catalogrank/internal/interaction"
	"github.com/tomtom215/catalogrank/internal/logging"
	"github.com/tomtom215/catalogrank/internal/metrics"
	"github.com/tomtom215/catalogrank/internal/popularity"
	"github.com/tomtom215/catalogrank/internal/weights"
)

// BehaviorTracker is the behavior state the engine reads and updates.
type BehaviorTracker interface {
	RecordSearch(ctx context.Context, userID string, ev behavior.SearchEvent) error
	RecordInteraction(ctx context.Context, ev interaction.Event) error
	RecordSortUsage(ctx context.Context, userID, mode string) error
	Profile(ctx context.Context, userID string) (*behavior.Profile, error)
	Personalization(ctx context.Context, userID string) (*behavior.PersonalizationConfig, error)
	SortPreferences(ctx context.Context, userID string) (behavior.SortPreferences, error)
	RecommendPersonalizedWeights(ctx context.Context, userID string) (weights.ScoringWeights, error)
	Reset(ctx context.Context, userID string) error
}

// PopularitySource serves popularity counters and accepts new interactions.
type PopularitySource interface {
	GetBatch(ctx context.Context, assetIDs []string) map[string]*popularity.AssetPopularity
	Record(ctx context.Context, events ...interaction.Event) error
}

// ResultCache stores ranking results.
type ResultCache interface {
	GetOrCompute(ctx context.Context, req cache.Request, compute cache.ComputeFunc) (*cache.Entry, cache.Source, error)
	InvalidateUser(ctx context.Context, userID string) int
	Metrics() cache.PerformanceMetrics
}

// Config configures the Engine.
type Config struct {
	// RelevanceNorm is the raw relevance that maps to a relevance score of 1.
	RelevanceNorm float64 `koanf:"relevance_norm"`

	// DefaultWeights are used when nothing more specific applies.
	DefaultWeights weights.ScoringWeights `koanf:"default_weights"`

	// OptimizerTTL bounds how long optimized weights are reused.
	OptimizerTTL time.Duration `koanf:"optimizer_ttl"`

	// OptimizerCapacity bounds the number of memoized (query, user) pairs.
	OptimizerCapacity int `koanf:"optimizer_capacity"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		RelevanceNorm:     DefaultRelevanceNorm,
		DefaultWeights:    weights.Default(),
		OptimizerTTL:      time.Hour,
		OptimizerCapacity: 10000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RelevanceNorm <= 1 {
		return fmt.Errorf("relevance_norm must be greater than 1, got %v", c.RelevanceNorm)
	}
	if _, err := weights.Sanitize(c.DefaultWeights); err != nil {
		return fmt.Errorf("default_weights: %w", err)
	}
	if c.OptimizerTTL <= 0 {
		return fmt.Errorf("optimizer_ttl must be positive, got %v", c.OptimizerTTL)
	}
	if c.OptimizerCapacity <= 0 {
		return fmt.Errorf("optimizer_capacity must be positive, got %d", c.OptimizerCapacity)
	}
	return nil
}

// FeedbackRequest is the input to Engine.RecordFeedback.
type FeedbackRequest struct {
	UserID    string
	SessionID string
	Query     string
	SortMode  SortMode
	Events    []interaction.Event

	// Satisfaction is an optional explicit rating in [0, 1].
	Satisfaction *float64

	// ClickPositions supplements the positions carried by click events.
	ClickPositions []int
}

// UserPreferences is what the engine knows about a user.
type UserPreferences struct {
	UserID          string                          `json:"user_id"`
	Sort            behavior.SortPreferences        `json:"sort"`
	Personalization *behavior.PersonalizationConfig `json:"personalization"`
	Weights         weights.ScoringWeights          `json:"recommended_weights"`
}

// trackerError marks a behavior tracker failure during scoring.
type trackerError struct{ err error }

func (e *trackerError) Error() string { return "behavior tracker: " + e.err.Error() }
func (e *trackerError) Unwrap() error { return e.err }

// Engine ranks candidate lists. A request passes through the result cache;
// on a miss candidates are scored or sorted, and the result is stored. Any
// failure while scoring returns the candidates in their original order.
type Engine struct {
	cfg       Config
	scorer    Scorer
	tracker   BehaviorTracker
	pop       PopularitySource
	results   ResultCache
	optimizer *Optimizer
	stats     *QueryStats
	logger    zerolog.Logger
	now       func() time.Time

	// scoreFn is Scorer.Score; tests replace it.
	scoreFn func(ScoreInput) SortingScores
}

// NewEngine creates an Engine.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewEngine(cfg Config, tracker BehaviorTracker, pop PopularitySource, results ResultCache, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking config: %w", err)
	}
	if tracker == nil || pop == nil || results == nil {
		return nil, errors.New("ranking engine requires a tracker, popularity source and result cache")
	}

	stats := NewQueryStats()
	e := &Engine{
		cfg:       cfg,
		scorer:    NewScorer(cfg.RelevanceNorm),
		tracker:   tracker,
		pop:       pop,
		results:   results,
		optimizer: NewOptimizer(stats, cfg.OptimizerTTL, cfg.OptimizerCapacity),
		stats:     stats,
		logger:    logger.With().Str("component", "ranking").Logger(),
		now:       time.Now,
	}
	e.scoreFn = e.scorer.Score
	return e, nil
}

// Rank orders req.Candidates for req.SortMode. Only an unknown sort mode,
// rejected weights or a cancelled context return an error; every other
// failure degrades to the original order.
//
//nolint:gocritic // Request is passed by value so the caller's copy is never modified
func (e *Engine) Rank(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if !req.SortMode.Valid() {
		metrics.RankRequests.WithLabelValues("invalid", "rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSortMode, req.SortMode)
	}

	var explicit *weights.ScoringWeights
	if req.Weights != nil {
		w, err := weights.Sanitize(*req.Weights)
		if err != nil {
			metrics.RankRequests.WithLabelValues(string(req.SortMode), "rejected").Inc()
			return nil, fmt.Errorf("%w: %w", ErrInvalidWeights, err)
		}
		explicit = &w
	}

	e.recordUsage(ctx, &req)

	w, err := e.effectiveWeights(ctx, &req, explicit)
	if err != nil {
		return e.degrade(&req, e.cfg.DefaultWeights, start, "behavior_error", err), nil
	}

	scope := ""
	if req.SortMode.Scored() {
		scope = req.UserID
	}
	key := cache.DeriveKey(cache.KeyParams{
		Query:    req.Query,
		SortMode: string(req.SortMode),
		UserID:   scope,
		Weights:  &w,
	})

	var computed []RankedCandidate
	entry, source, err := e.results.GetOrCompute(ctx, cache.Request{
		Key:       key,
		Query:     req.Query,
		SortMode:  string(req.SortMode),
		UserID:    scope,
		ItemCount: len(req.Candidates),
	}, func(cctx context.Context) ([]byte, int, error) {
		items, err := e.rank(cctx, &req, w)
		if err != nil {
			return nil, 0, err
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, 0, fmt.Errorf("encode ranking: %w", err)
		}
		computed = items
		return data, len(items), nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.RankRequests.WithLabelValues(string(req.SortMode), "cancelled").Inc()
			return nil, ctxErr
		}
		var te *trackerError
		if errors.As(err, &te) {
			return e.degrade(&req, w, start, "behavior_error", err), nil
		}
		return e.degrade(&req, w, start, "internal_error", err), nil
	}

	items := computed
	if items == nil || source != cache.SourceComputed {
		if err := json.Unmarshal(entry.Value, &items); err != nil {
			return e.degrade(&req, w, start, "decode_error", err), nil
		}
	}

	metrics.RecordRank(string(req.SortMode), string(source), len(req.Candidates), time.Since(start))
	e.logger.Debug().
		Str("sort_mode", string(req.SortMode)).
		Str("source", string(source)).
		Int("candidates", len(req.Candidates)).
		Dur("duration", time.Since(start)).
		Msg("Ranked candidates")

	return &Result{
		Items:    items,
		SortMode: req.SortMode,
		Weights:  w,
		Source:   source,
		CacheKey: key,
	}, nil
}

// recordUsage feeds the request into the user's search history and sort
// usage. Failures only cost personalization quality.
func (e *Engine) recordUsage(ctx context.Context, req *Request) {
	if req.UserID == "" {
		return
	}
	if err := e.tracker.RecordSortUsage(ctx, req.UserID, string(req.SortMode)); err != nil {
		e.logger.Warn().Err(err).Str("user_id", logging.SanitizeUserID(req.UserID)).Msg("Failed to record sort usage")
	}
	ev := behavior.SearchEvent{
		Query:       req.Query,
		SortMode:    string(req.SortMode),
		ResultCount: len(req.Candidates),
		SessionID:   req.SessionID,
	}
	if err := e.tracker.RecordSearch(ctx, req.UserID, ev); err != nil {
		e.logger.Warn().Err(err).Str("user_id", logging.SanitizeUserID(req.UserID)).Msg("Failed to record search")
	}
}

// effectiveWeights picks, in order: explicit weights, the latest optimized
// weights for the (query, user) pair, and the sort mode's base weights.
func (e *Engine) effectiveWeights(ctx context.Context, req *Request, explicit *weights.ScoringWeights) (weights.ScoringWeights, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if w, ok := e.optimizer.Latest(req.Query, req.UserID); ok {
		return w, nil
	}
	return e.baseWeights(ctx, req.SortMode, req.UserID)
}

func (e *Engine) baseWeights(ctx context.Context, mode SortMode, userID string) (weights.ScoringWeights, error) {
	if mode == SortPersonalized && userID != "" {
		w, err := e.tracker.RecommendPersonalizedWeights(ctx, userID)
		if err != nil {
			return weights.ScoringWeights{}, &trackerError{err: err}
		}
		return w, nil
	}
	return weights.Normalize(e.cfg.DefaultWeights), nil
}

// rank scores every candidate and orders them for the request's sort mode.
//
//nolint:gocritic // ScoringWeights is a small value type
func (e *Engine) rank(ctx context.Context, req *Request, w weights.ScoringWeights) ([]RankedCandidate, error) {
	ids := make([]string, len(req.Candidates))
	for i := range req.Candidates {
		ids[i] = req.Candidates[i].ID
	}
	pops := e.pop.GetBatch(ctx, ids)

	var profile *behavior.Profile
	if req.SortMode.Scored() && req.UserID != "" {
		p, err := e.tracker.Profile(ctx, req.UserID)
		if err != nil {
			return nil, &trackerError{err: err}
		}
		profile = p
	}

	now := e.now()
	items := make([]sortItem, 0, len(req.Candidates))
	var ageSum time.Duration
	ageCount := 0
	for i := range req.Candidates {
		c := &req.Candidates[i]
		ap := pops[c.ID]
		items = append(items, newSortItem(c, e.scoreOne(c, ap, profile, w, now), ap))

		if age, ok := candidateAge(c, now); ok {
			ageSum += age
			ageCount++
		}
	}
	if ageCount > 0 {
		e.stats.RecordResultAge(req.Query, ageSum/time.Duration(ageCount))
	}

	return order(items, req.SortMode), nil
}

// scoreOne scores a single candidate. A panic is contained to the candidate,
// which receives neutral scores.
//
//nolint:gocritic // ScoringWeights is a small value type
func (e *Engine) scoreOne(c *Candidate, ap *popularity.AssetPopularity, profile *behavior.Profile, w weights.ScoringWeights, now time.Time) (sc SortingScores) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RankFallbacks.WithLabelValues("scoring_panic").Inc()
			e.logger.Error().Str("asset_id", c.ID).Interface("panic", r).Msg("Scoring failed for candidate")
			sc = NeutralScores(fmt.Sprintf("scoring failed, neutral score assigned: %v", r))
		}
	}()

	in := ScoreInput{Candidate: c, Popularity: ap, Weights: w, Now: now}
	if profile != nil {
		interest := profile.Interest(c.Meta())
		in.Personalization = &interest
	}
	return e.scoreFn(in)
}

func candidateAge(c *Candidate, now time.Time) (time.Duration, bool) {
	ts := c.UpdatedAt
	if ts.IsZero() {
		ts = c.CreatedAt
	}
	if ts.IsZero() || ts.After(now) {
		return 0, false
	}
	return now.Sub(ts), true
}

// degrade returns the candidates in their original order with neutral scores.
//
//nolint:gocritic // ScoringWeights is a small value type
func (e *Engine) degrade(req *Request, w weights.ScoringWeights, start time.Time, reason string, err error) *Result {
	metrics.RankFallbacks.WithLabelValues(reason).Inc()
	metrics.RecordRank(string(req.SortMode), "degraded", len(req.Candidates), time.Since(start))
	e.logger.Warn().Err(err).
		Str("reason", reason).
		Str("user_id", logging.SanitizeUserID(req.UserID)).
		Str("sort_mode", string(req.SortMode)).
		Msg("Ranking degraded, returning original order")

	items := make([]RankedCandidate, len(req.Candidates))
	for i := range req.Candidates {
		items[i] = RankedCandidate{
			Candidate: req.Candidates[i],
			Scores:    NeutralScores("ranking unavailable, original order kept"),
			Rank:      i + 1,
		}
	}
	return &Result{
		Items:    items,
		SortMode: req.SortMode,
		Weights:  w,
		Source:   cache.SourceComputed,
		Degraded: true,
	}
}

// RecordFeedback records interaction events, updates query statistics and
// re-optimizes the weights for the (query, user) pair. It returns the weights
// the next ranking for the pair will use. Storage failures are logged.
func (e *Engine) RecordFeedback(ctx context.Context, fb FeedbackRequest) (weights.ScoringWeights, error) {
	mode := fb.SortMode
	if mode == "" {
		mode = SortRelevance
	}
	if !mode.Valid() {
		return weights.ScoringWeights{}, fmt.Errorf("%w: %q", ErrUnknownSortMode, fb.SortMode)
	}

	now := e.now()
	positions := append([]int(nil), fb.ClickPositions...)
	success := false
	events := make([]interaction.Event, 0, len(fb.Events))
	for _, ev := range fb.Events {
		if ev.UserID == "" {
			ev.UserID = fb.UserID
		}
		if ev.SessionID == "" {
			ev.SessionID = fb.SessionID
		}
		if ev.Query == "" {
			ev.Query = fb.Query
		}
		if ev.At.IsZero() {
			ev.At = now
		}
		if ev.Kind.Engaged() {
			success = true
		}
		if ev.Kind == interaction.Click && ev.Position > 0 {
			positions = append(positions, ev.Position)
		}
		metrics.FeedbackEvents.WithLabelValues(ev.Kind.String()).Inc()

		if err := e.tracker.RecordInteraction(ctx, ev); err != nil {
			e.logger.Warn().Err(err).Str("user_id", logging.SanitizeUserID(ev.UserID)).Msg("Failed to record interaction")
		}
		events = append(events, ev)
	}

	if err := e.pop.Record(ctx, events...); err != nil {
		e.logger.Warn().Err(err).Int("events", len(events)).Msg("Failed to record interactions for popularity")
	}

	e.stats.RecordOutcome(fb.Query, success, positions)

	current, ok := e.optimizer.Latest(fb.Query, fb.UserID)
	if !ok {
		base, err := e.baseWeights(ctx, mode, fb.UserID)
		if err != nil {
			e.logger.Warn().Err(err).Str("user_id", logging.SanitizeUserID(fb.UserID)).Msg("Using default weights for optimization")
			base = weights.Normalize(e.cfg.DefaultWeights)
		}
		current = base
	}

	optimized := e.optimizer.Optimize(fb.Query, fb.UserID, current, &Feedback{
		Satisfaction:   fb.Satisfaction,
		ClickPositions: positions,
	})
	metrics.WeightOptimizations.WithLabelValues("feedback").Inc()
	return optimized, nil
}

// OptimizeWeights runs the optimizer for a pair without recording events.
//
//nolint:gocritic // ScoringWeights is a small value type
func (e *Engine) OptimizeWeights(query, userID string, current weights.ScoringWeights, fb *Feedback) weights.ScoringWeights {
	metrics.WeightOptimizations.WithLabelValues("direct").Inc()
	return e.optimizer.Optimize(query, userID, current, fb)
}

// QueryStats returns the optimizer statistics for a query.
func (e *Engine) QueryStats(query string) QueryStat {
	return e.stats.Get(query)
}

// Preferences returns the user's sort habits, derived personalization and
// recommended weights.
func (e *Engine) Preferences(ctx context.Context, userID string) (*UserPreferences, error) {
	sortPrefs, err := e.tracker.SortPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sort preferences: %w", err)
	}
	personal, err := e.tracker.Personalization(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("personalization: %w", err)
	}
	w, err := e.tracker.RecommendPersonalizedWeights(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recommended weights: %w", err)
	}
	return &UserPreferences{UserID: userID, Sort: sortPrefs, Personalization: personal, Weights: w}, nil
}

// ResetUser clears the user's behavior state, cached rankings and optimized
// weights.
func (e *Engine) ResetUser(ctx context.Context, userID string) error {
	if err := e.tracker.Reset(ctx, userID); err != nil {
		return fmt.Errorf("reset behavior: %w", err)
	}
	removed := e.results.InvalidateUser(ctx, userID)
	e.optimizer.ForgetUser(userID)
	e.logger.Info().Str("user_id", logging.SanitizeUserID(userID)).Int("cache_entries", removed).Msg("User state reset")
	return nil
}

// CachePerformanceMetrics reports result cache effectiveness.
func (e *Engine) CachePerformanceMetrics() cache.PerformanceMetrics {
	return e.results.Metrics()
}

// Prune drops expired optimizer and query statistics state. It is called by
// the cache maintenance service.
func (e *Engine) Prune() int {
	return e.optimizer.Prune() + e.stats.Prune()
}
