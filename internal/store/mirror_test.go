// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package store

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/models"
)

// failingStore errors on every write.
type failingStore struct{}

func (failingStore) SaveEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (int64, error) {
	return 0, errors.New("mirror down")
}

func (failingStore) GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error) {
	return nil, ErrNotFound
}

func (failingStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.EventRecord, error) {
	return nil, nil
}

func (failingStore) UpsertRepository(ctx context.Context, repo *models.Repository) error {
	return errors.New("mirror down")
}

func (failingStore) GetRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	return nil, ErrNotFound
}

func (failingStore) Close() error { return nil }

func TestMirroredWritesBoth(t *testing.T) {
	primary := newTestStore(t)
	mirror := newTestStore(t)
	m := NewMirrored(primary, mirror)
	ctx := context.Background()

	seq, err := m.SaveEvent(ctx, "ev-1", "issues", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if seq == 0 {
		t.Error("sequence not assigned")
	}

	for name, s := range map[string]Store{"primary": primary, "mirror": mirror} {
		if _, err := s.GetEvent(ctx, "ev-1"); err != nil {
			t.Errorf("%s missing mirrored event: %v", name, err)
		}
	}
}

func TestMirroredFailureDoesNotSurface(t *testing.T) {
	primary := newTestStore(t)
	m := NewMirrored(primary, failingStore{})
	ctx := context.Background()

	if _, err := m.SaveEvent(ctx, "ev-1", "issues", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("mirror failure surfaced from SaveEvent: %v", err)
	}
	repo := &models.Repository{FullName: "octo/repo", Owner: "octo"}
	if err := m.UpsertRepository(ctx, repo); err != nil {
		t.Fatalf("mirror failure surfaced from UpsertRepository: %v", err)
	}

	if _, err := primary.GetEvent(ctx, "ev-1"); err != nil {
		t.Errorf("primary write lost: %v", err)
	}
}

func TestMirroredReadsFromPrimary(t *testing.T) {
	primary := newTestStore(t)
	mirror := newTestStore(t)
	ctx := context.Background()

	if _, err := primary.SaveEvent(ctx, "only-primary", "issues", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("seed primary: %v", err)
	}

	m := NewMirrored(primary, mirror)
	if _, err := m.GetEvent(ctx, "only-primary"); err != nil {
		t.Errorf("read did not come from primary: %v", err)
	}
}
