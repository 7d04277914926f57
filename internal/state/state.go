// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package state tracks the lifecycle status of every event and owns the
// per-event processing locks. Both live in one BadgerDB so a status check
// and its dependent write can share a transaction, which is what the
// idempotency guarantees rest on.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

// Status is an event's position in the processing lifecycle.
type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

const (
	eventKeyPrefix = "event_status:"
	lockKeyPrefix  = "event_lock:"
)

// ErrNotFound is returned when no status exists for an event.
var ErrNotFound = errors.New("state: event not found")

// Record is the stored status entry for one event.
type Record struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists event statuses and locks.
type Store struct {
	db *badger.DB
}

// Options configures a Store.
type Options struct {
	Path     string
	InMemory bool
}

// New opens the state database. Unlike the cache, state must survive
// restarts in production; in-memory mode exists for tests.
func New(opts Options) (*Store, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
		badgerOpts.SyncWrites = true
		badgerOpts.ValueLogFileSize = 64 << 20
	}
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger state db: %w", err)
	}
	return &Store{db: db}, nil
}

// update runs a read-modify-write transaction, retrying on optimistic
// conflict. A conflicting transaction re-reads the winner's writes, which
// is exactly what the if-absent semantics need.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// Get returns the current status record for an event.
func (s *Store) Get(eventID string) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(eventID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get event status: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Set transitions an event to the given status. A processed event is
// terminal: any attempt to move it elsewhere is silently ignored so a
// racing duplicate can never resurrect a finished event.
func (s *Store) Set(eventID string, status Status, processErr error) error {
	return s.update(func(txn *badger.Txn) error {
		current, err := readRecord(txn, eventID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if current != nil && current.Status == StatusProcessed && status != StatusProcessed {
			return nil
		}

		rec := Record{Status: status, UpdatedAt: time.Now().UTC()}
		if processErr != nil {
			rec.Error = processErr.Error()
		}
		return writeRecord(txn, eventID, &rec)
	})
}

// MarkReceivedIfAbsent records an event as received unless a status already
// exists. The check and the write share one transaction so two concurrent
// deliveries of the same event cannot both claim it. Returns the inserted
// flag and the pre-existing status when not inserted.
func (s *Store) MarkReceivedIfAbsent(eventID string) (inserted bool, existing Status, err error) {
	err = s.update(func(txn *badger.Txn) error {
		inserted = false
		existing = ""
		current, err := readRecord(txn, eventID)
		if err == nil {
			existing = current.Status
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		inserted = true
		return writeRecord(txn, eventID, &Record{
			Status:    StatusReceived,
			UpdatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return false, "", err
	}
	return inserted, existing, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func readRecord(txn *badger.Txn, eventID string) (*Record, error) {
	item, err := txn.Get(eventKey(eventID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event status: %w", err)
	}
	var rec Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode event status: %w", err)
	}
	return &rec, nil
}

func writeRecord(txn *badger.Txn, eventID string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event status: %w", err)
	}
	return txn.Set(eventKey(eventID), data)
}

func eventKey(eventID string) []byte {
	return []byte(eventKeyPrefix + eventID)
}
