// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package models defines the shared data types that flow between the ingress,
// queue, worker, store and replay components.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// EventEnvelope is the unit handed from the ingress to the job queue.
// EventID is the idempotency key for the entire pipeline; the envelope is
// immutable once created.
type EventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Validate checks required fields and returns an error if validation fails.
func (e *EventEnvelope) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.EventType == "" {
		return &ValidationError{Field: "event_type", Message: "required"}
	}
	return nil
}

// EventRecord is the durable form of an envelope as persisted in the event
// log. SequenceID is store-assigned and monotonic; ordering by SequenceID
// defines the canonical replay order. Records are written once and never
// mutated.
type EventRecord struct {
	SequenceID int64           `json:"sequence_id"`
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RepositoryRef is the repository identity embedded in webhook payloads.
type RepositoryRef struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// Split returns the owner and repository name. The explicit Owner.Login
// wins; otherwise the full name is split on its slash.
func (r *RepositoryRef) Split() (owner, name string) {
	if r.Owner.Login != "" && r.Name != "" {
		return r.Owner.Login, r.Name
	}
	for i := 0; i < len(r.FullName); i++ {
		if r.FullName[i] == '/' {
			return r.FullName[:i], r.FullName[i+1:]
		}
	}
	return "", r.FullName
}

// eventPayload is the subset of a webhook payload the pipeline routes on.
type eventPayload struct {
	Repository   *RepositoryRef `json:"repository"`
	RepoFullName string         `json:"repo_full_name"`
}

// RepositoryFromPayload extracts the repository identity from a raw payload.
// Returns nil when the payload carries no repository, which the worker counts
// as an unroutable event.
func RepositoryFromPayload(payload []byte) *RepositoryRef {
	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}
	if p.Repository != nil && p.Repository.FullName != "" {
		return p.Repository
	}
	if p.RepoFullName != "" {
		ref := &RepositoryRef{FullName: p.RepoFullName}
		return ref
	}
	return nil
}

// Repository is the persisted repository record refreshed by the worker.
type Repository struct {
	ID        int64           `json:"id"`
	FullName  string          `json:"full_name"`
	Owner     string          `json:"owner"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
