// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package github

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned by every operation of an unconfigured client
// (no API token). Callers that can degrade gracefully check for it with
// errors.Is.
var ErrNotConfigured = errors.New("github: client not configured")

// RequestError is a failed API exchange, normalized so retry and error
// classification logic never touches transport-specific error types.
// RateHeaders carries the rate-limit metadata of the failed response so
// the limiter stays current even on error paths.
type RequestError struct {
	StatusCode  int
	URL         string
	Message     string
	RateHeaders http.Header
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("github: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an API response with status 404.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is an API response that indicates rate
// limiting: a 429, or a 403 with the remaining allowance at zero.
func IsRateLimited(err error) bool {
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	if re.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if re.StatusCode == http.StatusForbidden && re.RateHeaders != nil {
		return re.RateHeaders.Get(headerRateRemaining) == "0"
	}
	return false
}

// isRetryable reports whether a failed exchange is worth another attempt.
// Rate-limited and server-side failures retry; other client errors are
// terminal.
func isRetryable(err error) bool {
	if IsRateLimited(err) {
		return true
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode >= http.StatusInternalServerError
	}
	// Transport-level failures (timeouts, connection resets) retry.
	return !errors.Is(err, ErrNotConfigured)
}
