// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/boardstream/boardstream/internal/metrics"
)

// Rate header names as sent by the GitHub API.
const (
	headerRateRemaining = "X-Ratelimit-Remaining"
	headerRateReset     = "X-Ratelimit-Reset"
)

const (
	// acquireMargin pads the wait past a known reset boundary so the first
	// call after reset lands inside the fresh window.
	acquireMargin = 500 * time.Millisecond

	// backoffMargin pads every backoff wait.
	backoffMargin = 200 * time.Millisecond
)

// unbounded marks an uninitialized allowance; calls proceed immediately
// until the first header update establishes the real value.
const unbounded = int64(-1)

// RateLimiter tracks remaining call allowance and reset time for the GitHub
// API and paces outbound calls. The clock and sleep functions are injectable
// so tests can substitute deterministic versions.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int64
	resetAt   int64 // epoch seconds

	backoffBase time.Duration
	backoffCap  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a rate limiter with the given backoff pacing.
// Allowance starts unbounded until the first header update.
func NewRateLimiter(backoffBase, backoffCap time.Duration) *RateLimiter {
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	if backoffCap <= 0 {
		backoffCap = time.Minute
	}
	return &RateLimiter{
		remaining:   unbounded,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UpdateFromHeaders refreshes allowance and reset time from response
// metadata. Absent or malformed values are ignored; a header update can
// only ever improve on the conservative local estimate.
func (rl *RateLimiter) UpdateFromHeaders(h http.Header) {
	if h == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v := h.Get(headerRateRemaining); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			rl.remaining = n
			metrics.GitHubRateLimitRemaining.Set(float64(n))
		}
	}
	if v := h.Get(headerRateReset); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rl.resetAt = n
		}
	}
}

// Acquire consumes allowance for a call, suspending the caller until the
// known reset time (plus a small margin) when the allowance is exhausted.
// After waiting, allowance is conservatively forced to zero so the next
// header update re-establishes the true value.
func (rl *RateLimiter) Acquire(ctx context.Context, cost int64) error {
	rl.mu.Lock()

	if rl.remaining == unbounded {
		rl.mu.Unlock()
		return nil
	}

	if rl.remaining >= cost {
		rl.remaining -= cost
		rl.mu.Unlock()
		return nil
	}

	wait := rl.untilResetLocked() + acquireMargin
	rl.mu.Unlock()

	metrics.GitHubRateLimitWaits.Inc()
	if err := rl.sleep(ctx, wait); err != nil {
		return err
	}

	rl.mu.Lock()
	rl.remaining = 0
	rl.mu.Unlock()
	return nil
}

// Backoff suspends the caller for
// max(timeUntilKnownReset, min(cap, 2^attempt * base)) plus a small margin.
// Waiting at least to the reset boundary clears a known exhaustion window;
// the exponential term keeps growing on repeated failures when no boundary
// is known. The cap bounds worst-case latency.
func (rl *RateLimiter) Backoff(ctx context.Context, attempt int) error {
	rl.mu.Lock()
	untilReset := rl.untilResetLocked()
	rl.mu.Unlock()

	expo := rl.backoffBase
	for i := 0; i < attempt && expo < rl.backoffCap; i++ {
		expo *= 2
	}
	if expo > rl.backoffCap {
		expo = rl.backoffCap
	}

	wait := expo
	if untilReset > wait {
		wait = untilReset
	}
	return rl.sleep(ctx, wait+backoffMargin)
}

// State returns the current allowance and reset time for observability.
func (rl *RateLimiter) State() (remaining int64, resetAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.remaining, time.Unix(rl.resetAt, 0)
}

// untilResetLocked returns the duration until the known reset boundary,
// or zero when the boundary is unknown or already past. Callers hold mu.
func (rl *RateLimiter) untilResetLocked() time.Duration {
	if rl.resetAt == 0 {
		return 0
	}
	d := time.Unix(rl.resetAt, 0).Sub(rl.now())
	if d < 0 {
		return 0
	}
	return d
}
