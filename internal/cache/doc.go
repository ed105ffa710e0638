// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package cache implements the multi-tier cache for ranking results.

# Overview

A ranking request is looked up in this order:

 1. The in-process memory tier (Memory), keyed by DeriveKey.
 2. The shared Redis tier (RedisTier), when configured. Hits are copied
    back into the memory tier for their remaining lifetime.
 3. The similarity fallback: recently stored keys with the same sort mode
    and user scope are compared by Jaccard similarity of their query tokens.
    A match is reused only when similarity reaches the configured threshold
    (0.8 by default) and its item count is within the count tolerance of the
    current candidate count.
 4. Compute. Concurrent requests for the same key share one computation
    through singleflight, and the result is stored in every tier.

# Keys

DeriveKey hashes the normalized query, sort mode, optional user ID and the
weights. Weights are part of the key only when they differ from the default
weights, so the common case shares entries across callers.

# TTL Policy

TTLPolicy starts from the base TTL, doubles it for expensive sort modes
(personalized), triples it for queries seen more than ten times in the
frequency window, and caps anything user-scoped at the base TTL.

# Memory Tier

Memory is a lock-striped generic cache. Each shard has its own map, expiry
heap and mutex. A shard that grows past its share of the capacity drops
expired entries and then the entries closest to expiry. Memory never starts
goroutines; Manager.EvictExpired is driven by a supervised service and
takes each shard lock once per removed entry.

# Redis Tier

RedisTier wraps a go-redis client with a gobreaker circuit breaker. A plain
miss (redis.Nil) counts as a healthy response. When the breaker is open the
tier returns ErrTierUnavailable immediately and the Manager treats it as a
miss, so a Redis outage costs recomputation rather than latency.

# Usage

	mgr, err := cache.NewManager(cache.DefaultConfig(), redisTier, logger)
	if err != nil {
	    return err
	}
	if err := mgr.Open(ctx); err != nil {
	    return err
	}
	defer mgr.Close()

	key := cache.DeriveKey(cache.KeyParams{Query: q, SortMode: "relevance", UserID: user})
	entry, source, err := mgr.GetOrCompute(ctx, cache.Request{
	    Key: key, Query: q, SortMode: "relevance", UserID: user, ItemCount: len(candidates),
	}, compute)
*/
package cache
