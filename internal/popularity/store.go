// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package popularity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"github.com/tomtom215/catalogrank/internal/interaction"
	"github.com/tomtom215/catalogrank/internal/metrics"
)

// Store is the interaction data store the popularity counters are read from.
type Store interface {
	// Counters returns the current counters for each asset that has any
	// recorded interaction. Assets without data are absent from the map.
	Counters(ctx context.Context, assetIDs []string) (map[string]*AssetPopularity, error)

	// Append records interaction events. The log is append-only.
	Append(ctx context.Context, events ...interaction.Event) error

	Close() error
}

// DuckDBStore keeps the interaction log in a DuckDB table and aggregates
// counters with SQL.
type DuckDBStore struct {
	db *sql.DB
}

// OpenDuckDB opens (or creates) the interaction log at path. An empty path
// opens an in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*DuckDBStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	s := &DuckDBStore{db: db}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewDuckDBStore wraps an existing connection. The caller must call CreateTable.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the interaction log table if it does not exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS asset_interactions (
			asset_id TEXT NOT NULL,
			user_id TEXT,
			session_id TEXT,
			kind TEXT NOT NULL,
			query TEXT,
			position INTEGER,
			occurred_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_asset_interactions_asset ON asset_interactions(asset_id);
		CREATE INDEX IF NOT EXISTS idx_asset_interactions_time ON asset_interactions(occurred_at);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Append inserts events in a single transaction.
func (s *DuckDBStore) Append(ctx context.Context, events ...interaction.Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.PopularityStoreDuration.WithLabelValues("append").Observe(time.Since(start).Seconds())
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_interactions (asset_id, user_id, session_id, kind, query, position, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		e := &events[i]
		if e.Asset.ID == "" {
			continue
		}
		at := e.At
		if at.IsZero() {
			at = time.Now()
		}
		if _, err = stmt.ExecContext(ctx, e.Asset.ID, e.UserID, e.SessionID, e.Kind.String(), e.Query, e.Position, at.UTC()); err != nil {
			return fmt.Errorf("failed to insert interaction: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit interactions: %w", err)
	}
	return nil
}

// Counters aggregates the interaction log for assetIDs.
func (s *DuckDBStore) Counters(ctx context.Context, assetIDs []string) (map[string]*AssetPopularity, error) {
	result := make(map[string]*AssetPopularity, len(assetIDs))
	if len(assetIDs) == 0 {
		return result, nil
	}

	start := time.Now()
	defer func() {
		metrics.PopularityStoreDuration.WithLabelValues("counters").Observe(time.Since(start).Seconds())
	}()

	args := make([]interface{}, 0, len(assetIDs))
	placeholders := make([]string, len(assetIDs))
	for i, id := range assetIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	//nolint:gosec // placeholders are literal "?" markers, values are bound
	query := fmt.Sprintf(`
		SELECT
			asset_id,
			COUNT(*) FILTER (WHERE kind = 'view') AS views,
			COUNT(*) FILTER (WHERE kind = 'download') AS downloads,
			COUNT(*) FILTER (WHERE kind = 'bookmark') AS bookmarks,
			COUNT(*) FILTER (WHERE kind = 'share') AS shares,
			COUNT(*) FILTER (WHERE kind = 'search') AS searches,
			COUNT(*) FILTER (WHERE kind = 'click') AS clicks,
			MAX(occurred_at) FILTER (WHERE kind <> 'search') AS last_accessed
		FROM asset_interactions
		WHERE asset_id IN (%s)
		GROUP BY asset_id`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p            AssetPopularity
			lastAccessed sql.NullTime
		)
		if err := rows.Scan(&p.AssetID, &p.ViewCount, &p.DownloadCount, &p.BookmarkCount,
			&p.ShareCount, &p.SearchCount, &p.ClickCount, &lastAccessed); err != nil {
			return nil, fmt.Errorf("failed to scan interaction counters: %w", err)
		}
		if lastAccessed.Valid {
			p.LastAccessed = lastAccessed.Time
		}
		p.ClickThroughRate = ClickThroughRate(p.ClickCount, p.SearchCount)
		result[p.AssetID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interaction counters: %w", err)
	}
	return result, nil
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
