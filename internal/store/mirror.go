// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package store

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/models"
)

// Mirrored writes through to a primary store and best-effort duplicates
// writes to a mirror. Reads always come from the primary; a mirror failure
// is logged, never surfaced. Used during storage migration windows where a
// second database shadows the first.
type Mirrored struct {
	primary Store
	mirror  Store
}

// NewMirrored wraps primary with a best-effort mirror.
func NewMirrored(primary, mirror Store) *Mirrored {
	return &Mirrored{primary: primary, mirror: mirror}
}

func (m *Mirrored) SaveEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (int64, error) {
	seq, err := m.primary.SaveEvent(ctx, eventID, eventType, payload)
	if err != nil {
		return 0, err
	}
	if _, merr := m.mirror.SaveEvent(ctx, eventID, eventType, payload); merr != nil {
		logging.Warn().Err(merr).Str("event_id", eventID).Msg("Mirror write failed")
	}
	return seq, nil
}

func (m *Mirrored) GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error) {
	return m.primary.GetEvent(ctx, eventID)
}

func (m *Mirrored) ListEvents(ctx context.Context, filter EventFilter) ([]*models.EventRecord, error) {
	return m.primary.ListEvents(ctx, filter)
}

func (m *Mirrored) UpsertRepository(ctx context.Context, repo *models.Repository) error {
	if err := m.primary.UpsertRepository(ctx, repo); err != nil {
		return err
	}
	if merr := m.mirror.UpsertRepository(ctx, repo); merr != nil {
		logging.Warn().Err(merr).Str("repo", repo.FullName).Msg("Mirror write failed")
	}
	return nil
}

func (m *Mirrored) GetRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	return m.primary.GetRepository(ctx, fullName)
}

func (m *Mirrored) Close() error {
	err := m.primary.Close()
	if merr := m.mirror.Close(); merr != nil {
		logging.Warn().Err(merr).Msg("Mirror close failed")
	}
	return err
}
