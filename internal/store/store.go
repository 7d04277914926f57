// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package store persists events and repository snapshots in DuckDB. The
// event log is append-only and globally ordered by sequence id, which is
// what makes deterministic replay possible.
package store

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// EventFilter narrows a ListEvents scan. Zero values mean unbounded.
type EventFilter struct {
	Repo string
	From time.Time
	To   time.Time
}

// Store is the durable persistence surface used by the worker, the replay
// engine, and the query API.
type Store interface {
	// SaveEvent appends an event to the log and returns its sequence id.
	SaveEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (int64, error)

	// GetEvent returns one event by its id.
	GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error)

	// ListEvents returns events matching the filter in ascending sequence
	// order.
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.EventRecord, error)

	// UpsertRepository inserts or replaces a repository snapshot.
	UpsertRepository(ctx context.Context, repo *models.Repository) error

	// GetRepository returns a repository snapshot by full name.
	GetRepository(ctx context.Context, fullName string) (*models.Repository, error)

	Close() error
}
