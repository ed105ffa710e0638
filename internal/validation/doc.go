// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package validation wraps go-playground/validator with field names taken
// from json tags and readable messages.
//
//	type rankRequest struct {
//		Candidates []ranking.Candidate `json:"candidates" validate:"required,min=1,dive"`
//	}
//
//	if err := validation.ValidateStruct(req); err != nil {
//		var verr *validation.Error
//		errors.As(err, &verr) // verr.Fields[0].Field == "candidates"
//	}
package validation
