// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package ranking orders candidate lists returned by a search backend.

# Sort Modes

relevance and personalized run the Scorer, which combines four sub-scores
with ScoringWeights:

  - relevance: ln(raw+1) / ln(50), clamped to [0, 1]
  - popularity: see popularity.Score; 0.1 when no data exists
  - recency: quality score / 100, 0.5 when absent
  - personalization: behavior interest prediction, 0.5 without a user

popularity, recency, quality and created sort by a single field. Ties in
every mode break by raw relevance and then by ID, so ordering is total.

# Weights

Engine.Rank uses, in order: weights given by the caller (normalized, or
rejected with ErrInvalidWeights), the optimizer's latest weights for the
(query, user) pair, and the base weights of the sort mode. Personalized
sorting bases its weights on the user's sort habits.

# Optimizer

RecordFeedback updates per-query statistics and runs the Optimizer, whose
rules each raise one dimension by a fixed step up to a cap and renormalize.
Results are memoized per (query, user, weights, feedback) for an hour.

# Degradation

A behavior tracker failure returns the candidates in their original order
with neutral scores and Result.Degraded set; such results are not cached.
A panic while scoring one candidate gives that candidate neutral scores and
leaves the rest untouched.
*/
package ranking
