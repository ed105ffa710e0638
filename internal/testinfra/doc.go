// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package testinfra starts Docker containers for integration tests with
// testcontainers-go. Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/cache/...
//
// Tests that need Redis call StartRedis, which skips when Docker is not
// available and terminates the container when the test ends:
//
//	func TestSharedTier(t *testing.T) {
//	    redisC := testinfra.StartRedis(t)
//	    client := cache.NewRedisClient(redisC.Addr, "", 0)
//	    // ...
//	}
//
// The first run pulls the image; later runs use the local copy.
package testinfra
