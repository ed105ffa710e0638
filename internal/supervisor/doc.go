// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package supervisor owns the process lifecycle through a suture tree.

	catalogrank (root)
	├── maintenance-layer
	│   ├── cache-eviction       Manager.EvictExpired + Engine.Prune
	│   ├── popularity-refresh   Provider.Refresh
	│   └── behavior-flush       Tracker.Flush
	└── api-layer
	    └── http-server

Services live in the services subpackage. A service that returns an error
or panics is restarted with backoff; supervisor events are logged through
sutureslog with the zerolog-backed slog handler from the logging package.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMaintenanceService(services.NewCacheEvictionService(manager, engine, time.Minute, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
