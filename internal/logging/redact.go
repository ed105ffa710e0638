// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package logging

// maxQueryLogLength bounds search text written to logs.
const maxQueryLogLength = 64

// SanitizeUserID masks a user ID, keeping the first and last four bytes.
//
//	"user-12345678" -> "user...5678"
func SanitizeUserID(userID string) string {
	return mask(userID, 8)
}

// SanitizeSessionID masks a session ID the same way with a longer floor.
func SanitizeSessionID(sessionID string) string {
	return mask(sessionID, 12)
}

// SanitizeQuery truncates search text. Queries are user input and can be
// arbitrarily long.
func SanitizeQuery(query string) string {
	r := []rune(query)
	if len(r) <= maxQueryLogLength {
		return query
	}
	return string(r[:maxQueryLogLength]) + "..."
}

func mask(s string, floor int) string {
	if s == "" {
		return ""
	}
	if len(s) <= floor {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
