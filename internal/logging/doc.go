// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

/*
Package logging provides the process-wide zerolog logger.

Call Init once from main with the logging section of the configuration.
Components receive a zerolog.Logger in their constructors and derive a
child with a "component" field; code without an injected logger uses the
package-level helpers:

	logging.Init(cfg.Logging)
	logging.Info().Str("addr", addr).Msg("HTTP server listening")

HTTP handlers attach a request ID to the context and log through Ctx:

	logging.Ctx(r.Context()).Warn().Err(err).Msg("rank degraded")

User identifiers and query text pass through SanitizeUserID and
SanitizeQuery before they reach a log line.

SlogHandler bridges slog to zerolog for the supervisor's sutureslog hook.
*/
package logging
