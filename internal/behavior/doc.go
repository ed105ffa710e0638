// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package behavior tracks per-user search and interaction history and derives
personalization from it.

# State

Each user holds a bounded search history (100 entries, most recent first),
a per-asset interaction log (50 entries per asset, at most 500 assets) and
sort mode usage counters. State lives in 32 lock stripes keyed by an FNV
hash of the user ID, so requests for different users rarely share a lock.

The derived PersonalizationConfig (preferred categories and types, interest
tags, weighted interaction totals) is rebuilt lazily on the first read after
new events arrive.

# Persistence

With a Store attached, Flush writes snapshots of changed users in one Badger
write batch and drops persisted users idle longer than Config.IdleTTL from
memory. Users not in memory are loaded from the store on first access. Store
reads happen outside the stripe locks.

# Failure Semantics

Unknown users always receive neutral values: interest 0.5, default weights,
empty preferences. Errors are only returned when persisted state exists but
cannot be read; callers are expected to fall back to neutral scoring.
*/
package behavior
