// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package behavior

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/catalogrank/internal/interaction"
	"github.com/tomtom215/catalogrank/internal/metrics"
	"github.com/tomtom215/catalogrank/internal/weights"
)

const stripeCount = 32

// Sort modes the tracker reacts to when recommending weights.
const (
	SortPersonalized = "personalized"
	SortPopularity   = "popularity"
	SortRelevance    = "relevance"
)

// Interest prediction increments.
const (
	neutralInterest  = 0.5
	categoryBonus    = 0.2
	typeBonus        = 0.15
	tagBonus         = 0.1
	priorInteraction = 0.1
)

// Config configures the Tracker.
type Config struct {
	MaxSearches             int `koanf:"max_searches"`
	MaxInteractionsPerAsset int `koanf:"max_interactions_per_asset"`
	MaxAssetsPerUser        int `koanf:"max_assets_per_user"`

	// PersonalizedUseThreshold and PopularityUseThreshold are the sort usage
	// counts above which RecommendPersonalizedWeights boosts a dimension.
	PersonalizedUseThreshold int `koanf:"personalized_use_threshold"`
	PopularityUseThreshold   int `koanf:"popularity_use_threshold"`

	// IdleTTL is how long a persisted user stays in memory without activity.
	IdleTTL time.Duration `koanf:"idle_ttl"`
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		MaxSearches:              100,
		MaxInteractionsPerAsset:  50,
		MaxAssetsPerUser:         500,
		PersonalizedUseThreshold: 5,
		PopularityUseThreshold:   10,
		IdleTTL:                  time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSearches <= 0 {
		return fmt.Errorf("max_searches must be positive, got %d", c.MaxSearches)
	}
	if c.MaxInteractionsPerAsset <= 0 {
		return fmt.Errorf("max_interactions_per_asset must be positive, got %d", c.MaxInteractionsPerAsset)
	}
	if c.MaxAssetsPerUser <= 0 {
		return fmt.Errorf("max_assets_per_user must be positive, got %d", c.MaxAssetsPerUser)
	}
	if c.PersonalizedUseThreshold < 0 || c.PopularityUseThreshold < 0 {
		return fmt.Errorf("sort usage thresholds must not be negative")
	}
	if c.IdleTTL <= 0 {
		return fmt.Errorf("idle_ttl must be positive, got %v", c.IdleTTL)
	}
	return nil
}

// SortPreferences records how a user sorts results.
type SortPreferences struct {
	DefaultMode string         `json:"default_mode"`
	Counts      map[string]int `json:"counts"`
	LastUsed    string         `json:"last_used,omitempty"`
	LastUsedAt  time.Time      `json:"last_used_at,omitempty"`
}

func (p SortPreferences) clone() SortPreferences {
	out := p
	out.Counts = make(map[string]int, len(p.Counts))
	for k, v := range p.Counts {
		out.Counts[k] = v
	}
	return out
}

// mostUsed returns the most frequently used mode, ties broken by name.
func (p SortPreferences) mostUsed() string {
	best, bestCount := SortRelevance, 0
	modes := make([]string, 0, len(p.Counts))
	for m := range p.Counts {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	for _, m := range modes {
		if c := p.Counts[m]; c > bestCount {
			best, bestCount = m, c
		}
	}
	return best
}

type userState struct {
	searches     []SearchEvent
	interactions map[string][]interaction.Event
	touched      map[string]time.Time
	sort         SortPreferences

	profile *PersonalizationConfig
	stale   bool

	version      uint64
	savedVersion uint64
	lastActive   time.Time
}

func newUserState() *userState {
	return &userState{
		interactions: make(map[string][]interaction.Event),
		touched:      make(map[string]time.Time),
		sort:         SortPreferences{DefaultMode: SortRelevance, Counts: make(map[string]int)},
		stale:        true,
	}
}

func stateFromSnapshot(s *Snapshot) *userState {
	st := newUserState()
	st.searches = s.Searches
	for id, events := range s.Interactions {
		st.interactions[id] = events
		for i := range events {
			if events[i].At.After(st.touched[id]) {
				st.touched[id] = events[i].At
			}
		}
	}
	if s.Sort.Counts != nil {
		st.sort = s.Sort
	}
	return st
}

func (st *userState) snapshot(userID string, now time.Time) *Snapshot {
	snap := &Snapshot{
		UserID:       userID,
		Searches:     append([]SearchEvent(nil), st.searches...),
		Interactions: make(map[string][]interaction.Event, len(st.interactions)),
		Sort:         st.sort.clone(),
		SavedAt:      now,
	}
	for id, events := range st.interactions {
		snap.Interactions[id] = append([]interaction.Event(nil), events...)
	}
	return snap
}

func (st *userState) modified(now time.Time) {
	st.version++
	st.stale = true
	st.lastActive = now
}

type stripe struct {
	mu    sync.Mutex
	users map[string]*userState

	// resets counts Reset calls for users in this stripe. Loads and flush
	// snapshots taken under an older count are discarded.
	resets uint64
}

// Tracker records per-user search and interaction events and derives
// personalization from them. User state is spread over lock stripes so
// different users never contend. An optional Store persists state; users
// missing from memory are loaded from it on first access.
type Tracker struct {
	cfg     Config
	store   Store
	stripes [stripeCount]stripe
	logger  zerolog.Logger

	// persistMu serializes Flush writes with Reset deletes.
	persistMu sync.Mutex

	now     func() time.Time
}

// NewTracker creates a Tracker. store may be nil for memory-only operation.
//
//nolint:gocritic // zerolog.Logger is passed by value per zerolog convention
func NewTracker(cfg Config, store Store, logger zerolog.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid behavior config: %w", err)
	}
	t := &Tracker{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "behavior").Logger(),
		now:    time.Now,
	}
	for i := range t.stripes {
		t.stripes[i].users = make(map[string]*userState)
	}
	return t, nil
}

func (t *Tracker) stripeFor(userID string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &t.stripes[h.Sum32()%stripeCount]
}

// withUser runs fn with the user's state under its stripe lock. When the user
// is not in memory it is loaded from the store first, outside the lock. A load
// that overlaps a Reset in the same stripe is repeated. If create is false and
// the user has no state anywhere, fn is called with nil.
func (t *Tracker) withUser(ctx context.Context, userID string, create bool, fn func(*userState)) error {
	s := t.stripeFor(userID)

	for {
		s.mu.Lock()
		if st, ok := s.users[userID]; ok {
			fn(st)
			s.mu.Unlock()
			return nil
		}
		resets := s.resets
		s.mu.Unlock()

		done, err := t.loadUser(ctx, s, userID, resets, create, fn)
		if done || err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// loadUser loads userID from the store and installs it unless a Reset ran in
// the stripe since resets was read. It reports whether fn was called.
func (t *Tracker) loadUser(ctx context.Context, s *stripe, userID string, resets uint64, create bool, fn func(*userState)) (bool, error) {
	var loaded *userState
	if t.store != nil {
		snap, err := t.store.Load(ctx, userID)
		switch {
		case err == nil:
			loaded = stateFromSnapshot(snap)
		case errors.Is(err, ErrNotFound):
		default:
			metrics.BehaviorStoreErrors.WithLabelValues("load").Inc()
			return false, fmt.Errorf("load behavior for user %s: %w", userID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[userID]; ok {
		fn(st)
		return true, nil
	}
	if s.resets != resets {
		return false, nil
	}
	if loaded == nil && !create {
		fn(nil)
		return true, nil
	}
	if loaded == nil {
		loaded = newUserState()
	}
	loaded.lastActive = t.now()
	s.users[userID] = loaded
	metrics.BehaviorTrackedUsers.Inc()
	fn(loaded)
	return true, nil
}

// RecordSearch appends a search to the user's history. Anonymous searches
// are ignored.
func (t *Tracker) RecordSearch(ctx context.Context, userID string, ev SearchEvent) error {
	if userID == "" {
		return nil
	}
	now := t.now()
	if ev.At.IsZero() {
		ev.At = now
	}
	return t.withUser(ctx, userID, true, func(st *userState) {
		st.searches = prepend(st.searches, ev, t.cfg.MaxSearches)
		st.modified(now)
	})
}

// RecordInteraction appends an interaction to the user's per-asset log.
func (t *Tracker) RecordInteraction(ctx context.Context, ev interaction.Event) error {
	if ev.UserID == "" || ev.Asset.ID == "" {
		return nil
	}
	now := t.now()
	if ev.At.IsZero() {
		ev.At = now
	}
	return t.withUser(ctx, ev.UserID, true, func(st *userState) {
		id := ev.Asset.ID
		st.interactions[id] = prepend(st.interactions[id], ev, t.cfg.MaxInteractionsPerAsset)
		st.touched[id] = ev.At
		t.trimAssets(st)
		st.modified(now)
	})
}

// trimAssets drops the least recently touched assets above the per-user cap.
func (t *Tracker) trimAssets(st *userState) {
	over := len(st.interactions) - t.cfg.MaxAssetsPerUser
	if over <= 0 {
		return
	}
	ids := make([]string, 0, len(st.touched))
	for id := range st.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if !st.touched[ids[i]].Equal(st.touched[ids[j]]) {
			return st.touched[ids[i]].Before(st.touched[ids[j]])
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids[:over] {
		delete(st.interactions, id)
		delete(st.touched, id)
	}
}

// RecordSortUsage counts one use of mode by the user.
func (t *Tracker) RecordSortUsage(ctx context.Context, userID, mode string) error {
	if userID == "" || mode == "" {
		return nil
	}
	now := t.now()
	mode = strings.ToLower(mode)
	return t.withUser(ctx, userID, true, func(st *userState) {
		st.sort.Counts[mode]++
		st.sort.LastUsed = mode
		st.sort.LastUsedAt = now
		st.sort.DefaultMode = st.sort.mostUsed()
		st.modified(now)
	})
}

// Personalization returns a copy of the user's derived personalization
// state, recomputing it if events arrived since the last read. Unknown users
// get an empty config.
func (t *Tracker) Personalization(ctx context.Context, userID string) (*PersonalizationConfig, error) {
	var out *PersonalizationConfig
	err := t.withUser(ctx, userID, false, func(st *userState) {
		if st == nil {
			out = neutralConfig(userID)
			return
		}
		out = t.profileLocked(userID, st).clone()
	})
	return out, err
}

func (t *Tracker) profileLocked(userID string, st *userState) *PersonalizationConfig {
	if st.stale || st.profile == nil {
		st.profile = derive(userID, st.searches, st.interactions, t.now())
		st.stale = false
	}
	return st.profile
}

// Profile is a point-in-time view of one user used to score many assets
// without touching tracker locks.
type Profile struct {
	Config     *PersonalizationConfig
	interacted map[string]struct{}
}

// Interest estimates the user's interest in an asset in [0, 1]. It starts
// from the neutral 0.5 and adds bonuses for a preferred category, a preferred
// type, weighted interest tags and any prior interaction with the asset.
func (p *Profile) Interest(asset interaction.AssetMeta) float64 {
	if p == nil || p.Config == nil {
		return neutralInterest
	}
	score := neutralInterest
	if p.Config.prefersCategory(asset.Category) {
		score += categoryBonus
	}
	if p.Config.prefersType(asset.Type) {
		score += typeBonus
	}
	for _, tag := range asset.Tags {
		score += tagBonus * p.Config.InterestTags[strings.ToLower(strings.TrimSpace(tag))]
	}
	if _, ok := p.interacted[asset.ID]; ok {
		score += priorInteraction
	}
	return clamp01(score)
}

// Profile returns the user's current profile. Unknown and anonymous users get
// a neutral profile.
func (t *Tracker) Profile(ctx context.Context, userID string) (*Profile, error) {
	p := &Profile{Config: neutralConfig(userID)}
	if userID == "" {
		return p, nil
	}
	err := t.withUser(ctx, userID, false, func(st *userState) {
		if st == nil {
			return
		}
		p.Config = t.profileLocked(userID, st).clone()
		p.interacted = make(map[string]struct{}, len(st.interactions))
		for id := range st.interactions {
			p.interacted[id] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PredictAssetInterest estimates the user's interest in one asset.
func (t *Tracker) PredictAssetInterest(ctx context.Context, userID string, asset interaction.AssetMeta) (float64, error) {
	p, err := t.Profile(ctx, userID)
	if err != nil {
		return neutralInterest, err
	}
	return p.Interest(asset), nil
}

// RecommendPersonalizedWeights derives scoring weights from the user's sort
// habits. Heavy use of personalized sorting shifts weight from relevance and
// popularity to personalization; heavy use of popularity sorting shifts
// weight from relevance and recency to popularity.
func (t *Tracker) RecommendPersonalizedWeights(ctx context.Context, userID string) (weights.ScoringWeights, error) {
	w := weights.Default()
	if userID == "" {
		return w, nil
	}

	var counts map[string]int
	err := t.withUser(ctx, userID, false, func(st *userState) {
		if st != nil {
			counts = st.sort.clone().Counts
		}
	})
	if err != nil {
		return w, err
	}

	if counts[SortPersonalized] > t.cfg.PersonalizedUseThreshold {
		w = weights.Boost(w, weights.Personalization, 0.2, 0.5, weights.Relevance, weights.Popularity)
	}
	if counts[SortPopularity] > t.cfg.PopularityUseThreshold {
		w = weights.Boost(w, weights.Popularity, 0.2, 0.5, weights.Relevance, weights.Recency)
	}
	return weights.Normalize(w), nil
}

// SortPreferences returns the user's sort usage.
func (t *Tracker) SortPreferences(ctx context.Context, userID string) (SortPreferences, error) {
	prefs := SortPreferences{DefaultMode: SortRelevance, Counts: map[string]int{}}
	err := t.withUser(ctx, userID, false, func(st *userState) {
		if st != nil {
			prefs = st.sort.clone()
		}
	})
	return prefs, err
}

// Reset discards all state for a user, in memory and in the store. A Flush
// or load that overlaps the reset cannot bring the old state back.
func (t *Tracker) Reset(ctx context.Context, userID string) error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	var err error
	if t.store != nil {
		if err = t.store.Delete(ctx, userID); err != nil {
			metrics.BehaviorStoreErrors.WithLabelValues("delete").Inc()
			err = fmt.Errorf("delete behavior for user %s: %w", userID, err)
		}
	}

	s := t.stripeFor(userID)
	s.mu.Lock()
	if _, ok := s.users[userID]; ok {
		delete(s.users, userID)
		metrics.BehaviorTrackedUsers.Dec()
	}
	s.resets++
	s.mu.Unlock()

	return err
}

// Users returns the number of users held in memory.
func (t *Tracker) Users() int {
	n := 0
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		n += len(s.users)
		s.mu.Unlock()
	}
	return n
}

// Flush persists every user changed since the last flush and drops persisted
// users idle longer than IdleTTL from memory. Snapshots are taken one stripe
// at a time and written outside the locks. It returns the number of users
// saved.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}

	type pending struct {
		snap    *Snapshot
		version uint64
		resets  uint64
	}

	now := t.now()
	var batch []pending
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		for id, st := range s.users {
			if st.version != st.savedVersion {
				batch = append(batch, pending{snap: st.snapshot(id, now), version: st.version, resets: s.resets})
			}
		}
		s.mu.Unlock()
	}

	t.persistMu.Lock()
	// Snapshots from a stripe that saw a Reset since they were taken stay
	// dirty and are picked up by the next flush if their user still exists.
	kept := batch[:0]
	for _, p := range batch {
		s := t.stripeFor(p.snap.UserID)
		s.mu.Lock()
		current := s.resets == p.resets
		s.mu.Unlock()
		if current {
			kept = append(kept, p)
		}
	}
	batch = kept

	if len(batch) > 0 {
		snaps := make([]*Snapshot, len(batch))
		for i := range batch {
			snaps[i] = batch[i].snap
		}
		if err := t.store.Save(ctx, snaps...); err != nil {
			t.persistMu.Unlock()
			metrics.BehaviorStoreErrors.WithLabelValues("save").Inc()
			return 0, fmt.Errorf("save behavior snapshots: %w", err)
		}
		for _, p := range batch {
			s := t.stripeFor(p.snap.UserID)
			s.mu.Lock()
			if st, ok := s.users[p.snap.UserID]; ok && st.savedVersion < p.version {
				st.savedVersion = p.version
			}
			s.mu.Unlock()
		}
	}
	t.persistMu.Unlock()

	evicted := 0
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		for id, st := range s.users {
			if st.version == st.savedVersion && now.Sub(st.lastActive) > t.cfg.IdleTTL {
				delete(s.users, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	metrics.BehaviorTrackedUsers.Sub(float64(evicted))

	if len(batch) > 0 || evicted > 0 {
		t.logger.Debug().Int("saved", len(batch)).Int("evicted", evicted).Msg("Flushed behavior state")
	}
	return len(batch), nil
}

// Close flushes pending state and closes the store.
func (t *Tracker) Close(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	_, flushErr := t.Flush(ctx)
	closeErr := t.store.Close()
	return errors.Join(flushErr, closeErr)
}

// prepend adds v at the front of list and keeps at most limit entries.
func prepend[T any](list []T, v T, limit int) []T {
	n := len(list) + 1
	if n > limit {
		n = limit
	}
	out := make([]T, n)
	out[0] = v
	copy(out[1:], list)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
