// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package worker consumes queued events and drives each one through the
// received, processing, processed/failed lifecycle. Effects are applied at
// most once per event: a status fast-exit stops already-finished events and
// a leased lock serializes concurrent claims on the same event.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/boardstream/boardstream/internal/cache"
	"github.com/boardstream/boardstream/internal/github"
	"github.com/boardstream/boardstream/internal/ingest"
	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/metrics"
	"github.com/boardstream/boardstream/internal/models"
	"github.com/boardstream/boardstream/internal/state"
	"github.com/boardstream/boardstream/internal/store"
)

// Processor handles one queued event per call.
type Processor struct {
	states    *state.Store
	cache     *cache.Cache
	stores    store.Store
	client    *github.Client
	lockLease time.Duration
}

// New wires a processor.
func New(states *state.Store, c *cache.Cache, s store.Store, client *github.Client, lockLease time.Duration) *Processor {
	return &Processor{
		states:    states,
		cache:     c,
		stores:    s,
		client:    client,
		lockLease: lockLease,
	}
}

// Handle processes a single event message. Returning an error nacks the
// message so the router's retry policy redelivers it; returning nil acks.
//
// The sequence is fixed: fast-exit on processed, acquire the lock, move to
// processing, persist the event, invalidate derived caches, refresh the
// repository snapshot, then finalize. The lock is released on every path;
// if the process dies first, the lease expires and the event becomes
// claimable again.
func (p *Processor) Handle(msg *message.Message) error {
	eventID := msg.Metadata.Get(ingest.MetaEventID)
	if eventID == "" {
		eventID = msg.UUID
	}
	eventType := msg.Metadata.Get(ingest.MetaEventType)
	start := time.Now()

	rec, err := p.states.Get(eventID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("read event status: %w", err)
	}
	if rec != nil && rec.Status == state.StatusProcessed {
		logging.Debug().Str("event_id", eventID).Msg("Event already processed, skipping")
		return nil
	}
	retry := rec != nil && rec.Status == state.StatusFailed

	token := uuid.NewString()
	acquired, err := p.states.AcquireLock(eventID, token, p.lockLease)
	if err != nil {
		return fmt.Errorf("acquire event lock: %w", err)
	}
	if !acquired {
		// Another worker holds the event. Ack and let its outcome stand;
		// a genuine failure comes back through the retry path.
		logging.Debug().Str("event_id", eventID).Msg("Event locked by another worker")
		return nil
	}
	defer func() {
		if err := p.states.ReleaseLock(eventID, token); err != nil {
			logging.Warn().Err(err).Str("event_id", eventID).Msg("Lock release failed")
		}
	}()

	if err := p.states.Set(eventID, state.StatusProcessing, nil); err != nil {
		return fmt.Errorf("mark event processing: %w", err)
	}
	if retry {
		metrics.JobsRetried.WithLabelValues(eventType).Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.lockLease)
	defer cancel()

	if err := p.process(ctx, eventID, eventType, msg.Payload); err != nil {
		metrics.JobsFailed.WithLabelValues(eventType).Inc()
		if serr := p.states.Set(eventID, state.StatusFailed, err); serr != nil {
			logging.Error().Err(serr).Str("event_id", eventID).Msg("Failed to record event failure")
		}
		logging.Error().Err(err).
			Str("event_id", eventID).
			Str("event_type", eventType).
			Msg("Event processing failed")
		return err
	}

	if err := p.states.Set(eventID, state.StatusProcessed, nil); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}

	metrics.JobsProcessed.WithLabelValues(eventType).Inc()
	metrics.ObserveJobDuration(eventType, time.Since(start))
	logging.Info().
		Str("event_id", eventID).
		Str("event_type", eventType).
		Dur("duration", time.Since(start)).
		Msg("Event processed")
	return nil
}

// process applies the event's effects: persist, invalidate, refresh.
func (p *Processor) process(ctx context.Context, eventID, eventType string, payload []byte) error {
	seq, err := p.stores.SaveEvent(ctx, eventID, eventType, json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	logging.Debug().Str("event_id", eventID).Int64("sequence_id", seq).Msg("Event persisted")

	ref := models.RepositoryFromPayload(payload)
	if ref == nil {
		// No repository in the payload. The event is persisted and done;
		// nothing downstream to invalidate or refresh.
		metrics.JobsUnroutable.WithLabelValues(eventType).Inc()
		logging.Debug().Str("event_id", eventID).Msg("Event carries no repository")
		return nil
	}

	p.invalidate(ref.FullName)

	return p.refreshRepository(ctx, ref)
}

// invalidate clears every cache entry that could reflect the repository's
// pre-event state: the direct entry, all listing pages, and any composite
// key naming the repository. Over-invalidation is safe; stale reads are
// not.
func (p *Processor) invalidate(fullName string) {
	if err := p.cache.Del(cache.RepoKey(fullName)); err != nil {
		logging.Warn().Err(err).Str("repo", fullName).Msg("Cache invalidation failed")
	}
	for _, pattern := range []string{
		cache.RepoListingPattern(),
		cache.RepoWildcardPattern(fullName),
		cache.BoardPattern(fullName),
	} {
		if _, err := p.cache.ScanAndDelete(pattern); err != nil {
			logging.Warn().Err(err).Str("pattern", pattern).Msg("Cache invalidation failed")
		}
	}
}

// refreshRepository re-fetches the repository from the API and upserts the
// snapshot. An unconfigured client skips the refresh rather than failing
// the event; a deleted repository is also terminal, not an error.
func (p *Processor) refreshRepository(ctx context.Context, ref *models.RepositoryRef) error {
	owner, name := ref.Split()
	if owner == "" || name == "" {
		return nil
	}

	data, err := p.client.FetchRepository(ctx, owner, name)
	if errors.Is(err, github.ErrNotConfigured) {
		logging.Debug().Str("repo", ref.FullName).Msg("API client not configured, skipping refresh")
		return nil
	}
	if github.IsNotFound(err) {
		logging.Info().Str("repo", ref.FullName).Msg("Repository gone upstream, snapshot kept")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch repository %s: %w", ref.FullName, err)
	}

	var meta struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(data, &meta)

	repo := &models.Repository{
		ID:        meta.ID,
		FullName:  ref.FullName,
		Owner:     owner,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	if err := p.stores.UpsertRepository(ctx, repo); err != nil {
		return fmt.Errorf("upsert repository %s: %w", ref.FullName, err)
	}
	return nil
}
