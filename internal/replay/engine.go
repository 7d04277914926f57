// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package replay reconstructs board state by folding the persisted event
// log, in sequence order, through a versioned handler. Replay is pure with
// respect to the log: the same events in the same order always produce the
// same boards, and replaying a prefix then the remainder equals replaying
// the whole log.
package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/metrics"
	"github.com/boardstream/boardstream/internal/models"
	"github.com/boardstream/boardstream/internal/store"
	"github.com/boardstream/boardstream/internal/webhook"
)

// Handler applies one event to a repository's board state. Handlers are
// versioned as a unit: a replay runs entirely under one version.
type Handler interface {
	// Version is the handler's registry key, e.g. "v1".
	Version() string

	// Apply folds the event into state. Returning (false, nil) skips the
	// event as irrelevant to boards. Any error aborts the whole replay:
	// a partially applied log is worse than no result.
	Apply(state *models.BoardState, rec *models.EventRecord) (applied bool, err error)
}

var handlers = map[string]Handler{}

// Register adds a handler version to the registry. Called from init.
func Register(h Handler) {
	handlers[h.Version()] = h
}

// Versions lists registered handler versions in order.
func Versions() []string {
	vs := make([]string, 0, len(handlers))
	for v := range handlers {
		vs = append(vs, v)
	}
	sort.Strings(vs)
	return vs
}

// Options selects what to replay.
type Options struct {
	// HandlerVersion picks the fold semantics. Required.
	HandlerVersion string

	// Repo restricts the replay to one repository full name. Empty means
	// every repository in the log.
	Repo string

	// From and To bound the scan by event creation time. Zero values mean
	// unbounded.
	From time.Time
	To   time.Time

	// DryRun marks the run as report-only. The fold still happens so the
	// counts are exact; callers skip persisting the boards.
	DryRun bool
}

// Result is the outcome of one replay run.
type Result struct {
	Boards  map[string]*models.BoardState
	Applied int
	Skipped int
}

// Engine runs replays against a store.
type Engine struct {
	store store.Store
}

// NewEngine creates a replay engine.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Replay folds matching events into per-repository boards. Events are
// consumed in ascending sequence order. Duplicate event ids within the run
// are applied once; the first occurrence wins, matching the live pipeline's
// idempotency.
func (e *Engine) Replay(ctx context.Context, opts Options) (*Result, error) {
	handler, ok := handlers[opts.HandlerVersion]
	if !ok {
		return nil, fmt.Errorf("replay: unknown handler version %q (have %v)",
			opts.HandlerVersion, Versions())
	}

	filter := store.EventFilter{Repo: opts.Repo, From: opts.From, To: opts.To}
	events, err := e.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("replay: list events: %w", err)
	}

	result := &Result{Boards: make(map[string]*models.BoardState)}
	seen := make(map[string]struct{}, len(events))

	for _, rec := range events {
		eventID := rec.EventID
		if eventID == "" {
			eventID = webhook.DeriveEventID("", rec.EventType, rec.Payload)
		}
		if _, dup := seen[eventID]; dup {
			result.Skipped++
			metrics.ReplayEventsSkipped.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[eventID] = struct{}{}

		ref := models.RepositoryFromPayload(rec.Payload)
		if ref == nil {
			result.Skipped++
			metrics.ReplayEventsSkipped.WithLabelValues("unroutable").Inc()
			continue
		}

		board, ok := result.Boards[ref.FullName]
		if !ok {
			board = models.NewBoardState(ref.FullName)
			result.Boards[ref.FullName] = board
		}

		applied, err := handler.Apply(board, rec)
		if err != nil {
			return nil, fmt.Errorf("replay: event %s (sequence %d): %w", eventID, rec.SequenceID, err)
		}
		if !applied {
			result.Skipped++
			metrics.ReplayEventsSkipped.WithLabelValues("irrelevant").Inc()
			continue
		}
		result.Applied++
		metrics.ReplayEventsApplied.Inc()
	}

	logging.Info().
		Str("handler", opts.HandlerVersion).
		Int("applied", result.Applied).
		Int("skipped", result.Skipped).
		Int("boards", len(result.Boards)).
		Msg("Replay complete")

	return result, nil
}
