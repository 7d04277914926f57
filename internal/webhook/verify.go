// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package webhook implements inbound delivery authentication and the
// deterministic event identity used as the idempotency key across enqueue,
// processing and replay.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/boardstream/boardstream/internal/logging"
)

// SignaturePrefix is the required signature header shape: sha256=<hex>.
const SignaturePrefix = "sha256="

// Verify checks the HMAC-SHA256 signature of a webhook delivery.
//
// The digest is computed over the exact raw request bytes; re-serialized
// payloads drift on key order and whitespace and would break the digest.
//
// With no secret configured, production mode fails closed: an unconfigured
// secret in production is a deployment error, not an open door. Outside
// production the delivery passes through for local testing.
func Verify(secret string, body []byte, signatureHeader string, production bool) bool {
	if secret == "" {
		if production {
			logging.Error().Msg("webhook secret not configured in production; rejecting delivery")
			return false
		}
		return true
	}

	if signatureHeader == "" {
		return false
	}
	if !strings.HasPrefix(signatureHeader, SignaturePrefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	sigHex := signatureHeader[len(SignaturePrefix):]
	// Hex length is public information (the algorithm is in the header), so
	// rejecting on length mismatch leaks nothing beyond the header shape.
	if len(sigHex) != hex.EncodedLen(len(expected)) {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	return hmac.Equal(sig, expected)
}
