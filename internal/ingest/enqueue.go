// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package ingest turns verified webhook deliveries into queued jobs,
// keyed by the derived event id. Redeliveries of processed events are
// dropped at the door; everything else goes back onto the queue and the
// worker decides.
package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/metrics"
	"github.com/boardstream/boardstream/internal/state"
	"github.com/boardstream/boardstream/internal/webhook"
)

// Metadata keys carried on every queued message.
const (
	MetaEventType = "event_type"
	MetaEventID   = "event_id"
)

// Result reports what Enqueue did with a delivery.
type Result struct {
	EventID   string
	Duplicate bool
}

// Enqueuer accepts deliveries into the pipeline.
type Enqueuer struct {
	states    *state.Store
	publisher message.Publisher
	topic     string
}

// NewEnqueuer wires the enqueue path.
func NewEnqueuer(states *state.Store, publisher message.Publisher, topic string) *Enqueuer {
	return &Enqueuer{states: states, publisher: publisher, topic: topic}
}

// Enqueue derives the event id, records the event as received on first
// sight, and publishes it. Only a redelivery of an already-processed event
// is dropped; an event still in flight or stuck in failed is published
// again, so a redelivery can restart work the queue has given up on. The
// worker's processed check and lease lock keep the extra publishes from
// applying effects twice.
func (e *Enqueuer) Enqueue(deliveryID, eventType string, payload []byte) (*Result, error) {
	eventID := webhook.DeriveEventID(deliveryID, eventType, payload)

	inserted, existing, err := e.states.MarkReceivedIfAbsent(eventID)
	if err != nil {
		return nil, fmt.Errorf("mark event received: %w", err)
	}
	if !inserted && existing == state.StatusProcessed {
		metrics.EventsDeduplicated.Inc()
		logging.Debug().
			Str("event_id", eventID).
			Msg("Duplicate delivery of processed event ignored")
		return &Result{EventID: eventID, Duplicate: true}, nil
	}

	msg := message.NewMessage(eventID, payload)
	msg.Metadata.Set(MetaEventType, eventType)
	msg.Metadata.Set(MetaEventID, eventID)

	if err := e.publisher.Publish(e.topic, msg); err != nil {
		return nil, fmt.Errorf("publish event %s: %w", eventID, err)
	}

	metrics.EventsReceived.WithLabelValues(eventType).Inc()
	logging.Info().
		Str("event_id", eventID).
		Str("event_type", eventType).
		Bool("redelivery", !inserted).
		Msg("Event enqueued")
	return &Result{EventID: eventID, Duplicate: !inserted}, nil
}
