// Catalogrank - Personalized Search Ranking for Data Asset Catalogs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogrank

package behavior

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/catalogrank/internal/interaction"
)

// ErrNotFound is returned by a Store when no snapshot exists for a user.
var ErrNotFound = errors.New("behavior snapshot not found")

const snapshotKeyPrefix = "behavior:user:"

// Snapshot is the persisted form of one user's behavior.
type Snapshot struct {
	UserID       string                         `json:"user_id"`
	Searches     []SearchEvent                  `json:"searches"`
	Interactions map[string][]interaction.Event `json:"interactions"`
	Sort         SortPreferences                `json:"sort"`
	SavedAt      time.Time                      `json:"saved_at"`
}

// Store persists user snapshots.
type Store interface {
	Load(ctx context.Context, userID string) (*Snapshot, error)
	Save(ctx context.Context, snaps ...*Snapshot) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

// BadgerStore keeps snapshots in BadgerDB, one key per user.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

// OpenBadgerStore opens (or creates) a BadgerDB at path. An empty path opens
// an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for behavior: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps an existing BadgerDB. Close does not close db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Load returns the snapshot for userID or ErrNotFound.
func (s *BadgerStore) Load(_ context.Context, userID string) (*Snapshot, error) {
	var snap Snapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save writes snapshots in a single batch.
func (s *BadgerStore) Save(_ context.Context, snaps ...*Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, snap := range snaps {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot %s: %w", snap.UserID, err)
		}
		if err := wb.Set(snapshotKey(snap.UserID), data); err != nil {
			return fmt.Errorf("set snapshot %s: %w", snap.UserID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush snapshots: %w", err)
	}
	return nil
}

// Delete removes a user's snapshot. Deleting a missing user is not an error.
func (s *BadgerStore) Delete(_ context.Context, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(snapshotKey(userID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		return nil
	})
}

// Users lists every user with a stored snapshot.
func (s *BadgerStore) Users(_ context.Context) ([]string, error) {
	var users []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			users = append(users, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return users, nil
}

// Close closes the database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func snapshotKey(userID string) []byte {
	return []byte(snapshotKeyPrefix + userID)
}
