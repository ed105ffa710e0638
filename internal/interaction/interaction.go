// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

// Package interaction defines the closed set of user interaction kinds and
// the event record shared by the behavior tracker and the popularity store.
package interaction

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownKind is returned when parsing an unrecognized interaction kind.
var ErrUnknownKind = errors.New("unknown interaction kind")

// Kind classifies a user interaction with an asset.
type Kind int

const (
	// View indicates the asset detail page was opened.
	View Kind = iota
	// Download indicates the asset data was downloaded.
	Download
	// Bookmark indicates the asset was saved for later.
	Bookmark
	// Share indicates the asset was shared with another user.
	Share
	// Search indicates the asset appeared in a search the user ran.
	Search
	// Click indicates the asset was clicked from a result list.
	Click
)

// Kinds lists every interaction kind.
var Kinds = [...]Kind{View, Download, Bookmark, Share, Search, Click}

// String returns the wire name for the kind.
func (k Kind) String() string {
	switch k {
	case View:
		return "view"
	case Download:
		return "download"
	case Bookmark:
		return "bookmark"
	case Share:
		return "share"
	case Search:
		return "search"
	case Click:
		return "click"
	default:
		return "unknown"
	}
}

// Weight returns the fixed signal strength of the kind. Popularity counters
// and behavior derivation both read this table.
func (k Kind) Weight() float64 {
	switch k {
	case View:
		return 1.0
	case Download:
		return 3.0
	case Bookmark:
		return 2.0
	case Share:
		return 4.0
	case Search:
		return 1.5
	case Click:
		return 1.0
	default:
		return 0
	}
}

// Engaged reports whether the kind counts as a successful search outcome.
func (k Kind) Engaged() bool {
	switch k {
	case Click, Download, Bookmark, Share:
		return true
	default:
		return false
	}
}

// ParseKind converts a wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "view":
		return View, nil
	case "download":
		return Download, nil
	case "bookmark":
		return Bookmark, nil
	case "share":
		return Share, nil
	case "search":
		return Search, nil
	case "click":
		return Click, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < View || k > Click {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AssetMeta is the catalog metadata the engine needs about an asset.
type AssetMeta struct {
	ID       string   `json:"id"`
	Category string   `json:"category,omitempty"`
	Type     string   `json:"type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Event is one user interaction with an asset.
type Event struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Asset     AssetMeta `json:"asset"`
	Query     string    `json:"query,omitempty"`

	// Position is the 1-based rank of the asset in the result list, zero if unknown.
	Position int `json:"position,omitempty"`

	At time.Time `json:"at"`
}
