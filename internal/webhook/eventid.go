// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/goccy/go-json"
)

// embeddedIDs is the subset of payload fields that can carry a stable event
// identity, checked in priority order.
type embeddedIDs struct {
	EventID  json.RawMessage `json:"event_id"`
	ID       json.RawMessage `json:"id"`
	HookID   json.RawMessage `json:"hook_id"`
	Delivery json.RawMessage `json:"delivery"`
}

// DeriveEventID computes the deterministic idempotency key for a delivery.
//
// Priority order:
//  1. the transport-level delivery identifier (X-GitHub-Delivery header)
//  2. an identifier embedded in the payload (event_id, id, hook_id, delivery)
//  3. a SHA-256 hash of eventType + canonical-serialized payload
//
// The same function runs in the live pipeline and in replay, so duplicate
// deliveries of the same logical event collapse to one id in both paths.
func DeriveEventID(deliveryID, eventType string, payload []byte) string {
	if deliveryID != "" {
		return deliveryID
	}
	if id := payloadEmbeddedID(payload); id != "" {
		return id
	}
	return hashEventID(eventType, payload)
}

// payloadEmbeddedID extracts an identity field from the payload, if any.
func payloadEmbeddedID(payload []byte) string {
	var ids embeddedIDs
	if err := json.Unmarshal(payload, &ids); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{ids.EventID, ids.ID, ids.HookID, ids.Delivery} {
		if s := rawScalarString(raw); s != "" {
			return s
		}
	}
	return ""
}

// rawScalarString renders a raw JSON string or number as its string form.
func rawScalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// hashEventID hashes the event type and the canonical payload form. The
// payload is round-tripped through a map so object keys serialize sorted,
// making the hash independent of the sender's key ordering.
func hashEventID(eventType string, payload []byte) string {
	canonical := payload
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err == nil {
		if b, err := json.Marshal(decoded); err == nil {
			canonical = b
		}
	}

	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write([]byte("|"))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
