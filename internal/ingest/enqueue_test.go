// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package ingest

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/boardstream/boardstream/internal/state"
)

// capturePublisher records published messages per topic.
type capturePublisher struct {
	published []*message.Message
	topic     string
	err       error
}

func (p *capturePublisher) Publish(topic string, msgs ...*message.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.published = append(p.published, msgs...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func newTestEnqueuer(t *testing.T, pub *capturePublisher) (*Enqueuer, *state.Store) {
	t.Helper()
	states, err := state.New(state.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { states.Close() })
	return NewEnqueuer(states, pub, "events.github"), states
}

func TestEnqueuePublishesWithMetadata(t *testing.T) {
	pub := &capturePublisher{}
	enq, _ := newTestEnqueuer(t, pub)

	payload := []byte(`{"action":"opened"}`)
	res, err := enq.Enqueue("delivery-1", "issues", payload)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if res.Duplicate {
		t.Error("first delivery reported duplicate")
	}
	if res.EventID != "delivery-1" {
		t.Errorf("event id = %q, want delivery header", res.EventID)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.published))
	}
	if pub.topic != "events.github" {
		t.Errorf("topic = %q", pub.topic)
	}
	msg := pub.published[0]
	if string(msg.Payload) != string(payload) {
		t.Errorf("payload = %s", msg.Payload)
	}
	if got := msg.Metadata.Get(MetaEventType); got != "issues" {
		t.Errorf("event_type metadata = %q", got)
	}
	if got := msg.Metadata.Get(MetaEventID); got != "delivery-1" {
		t.Errorf("event_id metadata = %q", got)
	}
}

func TestEnqueueRedeliveryWhileInFlight(t *testing.T) {
	pub := &capturePublisher{}
	enq, _ := newTestEnqueuer(t, pub)

	payload := []byte(`{"action":"opened"}`)
	first, err := enq.Enqueue("delivery-7", "issues", payload)
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	second, err := enq.Enqueue("delivery-7", "issues", payload)
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}

	if first.Duplicate {
		t.Error("first delivery reported duplicate")
	}
	if !second.Duplicate {
		t.Error("redelivery not reported duplicate")
	}
	if second.EventID != first.EventID {
		t.Errorf("redelivery event id %q != original %q", second.EventID, first.EventID)
	}
	// The worker dedups in-flight work, so the redelivery goes back on the
	// queue rather than being swallowed here.
	if len(pub.published) != 2 {
		t.Errorf("published %d messages, want 2", len(pub.published))
	}
}

func TestEnqueueProcessedRedeliveryDropped(t *testing.T) {
	pub := &capturePublisher{}
	enq, states := newTestEnqueuer(t, pub)

	payload := []byte(`{"action":"opened"}`)
	if _, err := enq.Enqueue("delivery-8", "issues", payload); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := states.Set("delivery-8", state.StatusProcessed, nil); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	res, err := enq.Enqueue("delivery-8", "issues", payload)
	if err != nil {
		t.Fatalf("redelivery Enqueue: %v", err)
	}
	if !res.Duplicate {
		t.Error("processed redelivery not reported duplicate")
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d messages, want 1", len(pub.published))
	}
}

func TestEnqueueFailedRedeliveryRepublishes(t *testing.T) {
	pub := &capturePublisher{}
	enq, states := newTestEnqueuer(t, pub)

	payload := []byte(`{"action":"opened"}`)
	if _, err := enq.Enqueue("delivery-9", "issues", payload); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := states.Set("delivery-9", state.StatusFailed, errors.New("boom")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	res, err := enq.Enqueue("delivery-9", "issues", payload)
	if err != nil {
		t.Fatalf("redelivery Enqueue: %v", err)
	}
	if !res.Duplicate {
		t.Error("failed redelivery not reported duplicate")
	}
	if len(pub.published) != 2 {
		t.Errorf("published %d messages, want 2: a redelivery must restart a failed event", len(pub.published))
	}
}

func TestEnqueueSameBodyWithoutDeliveryHeader(t *testing.T) {
	pub := &capturePublisher{}
	enq, _ := newTestEnqueuer(t, pub)

	payload := []byte(`{"action":"opened","issue":{"title":"a"}}`)
	first, err := enq.Enqueue("", "issues", payload)
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	second, err := enq.Enqueue("", "issues", payload)
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}

	if !second.Duplicate {
		t.Error("identical body not recognized without delivery header")
	}
	if second.EventID != first.EventID {
		t.Errorf("derived ids differ: %q vs %q", first.EventID, second.EventID)
	}
}

func TestEnqueuePublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	enq, _ := newTestEnqueuer(t, pub)

	_, err := enq.Enqueue("delivery-9", "issues", []byte(`{}`))
	if err == nil {
		t.Fatal("publish failure not surfaced")
	}
}
