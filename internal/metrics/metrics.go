// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the event pipeline:
// - Webhook ingress volume and signature rejections
// - Worker outcomes and processing latency
// - Outbound GitHub API pacing
// - Cache efficiency and invalidation breadth

var (
	// Ingress metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_events_received_total",
			Help: "Total number of webhook events accepted by the HTTP ingress",
		},
		[]string{"event_type"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_events_rejected_total",
			Help: "Total number of webhook deliveries rejected at ingress",
		},
		[]string{"reason"}, // "signature", "enqueue"
	)

	EventsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstream_events_deduplicated_total",
			Help: "Total number of duplicate deliveries skipped before enqueue",
		},
	)

	// Worker metrics
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_jobs_processed_total",
			Help: "Total number of jobs processed successfully",
		},
		[]string{"event_type"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_jobs_failed_total",
			Help: "Total number of jobs that failed processing",
		},
		[]string{"event_type"},
	)

	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_jobs_retried_total",
			Help: "Total number of job retry attempts",
		},
		[]string{"event_type"},
	)

	JobsUnroutable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_jobs_unroutable_total",
			Help: "Total number of events with no repository identity for board purposes",
		},
		[]string{"event_type"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardstream_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"event_type"},
	)

	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstream_lock_contention_total",
			Help: "Total number of jobs skipped because another worker held the event lock",
		},
	)

	// Outbound GitHub API metrics
	GitHubRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_github_requests_total",
			Help: "Total number of outbound GitHub API requests",
		},
		[]string{"operation", "outcome"}, // outcome: "success", "error", "rate_limited"
	)

	GitHubRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstream_github_ratelimit_waits_total",
			Help: "Total number of calls that suspended waiting for rate-limit allowance",
		},
	)

	GitHubRateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardstream_github_ratelimit_remaining",
			Help: "Last observed remaining GitHub API allowance (-1 when unknown)",
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstream_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstream_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_cache_invalidations_total",
			Help: "Total number of cache keys deleted by invalidation",
		},
		[]string{"mode"}, // "exact", "pattern"
	)

	// HTTP surface metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardstream_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Replay metrics
	ReplayEventsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstream_replay_events_applied_total",
			Help: "Total number of event records applied during replay runs",
		},
	)

	ReplayEventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstream_replay_events_skipped_total",
			Help: "Total number of event records skipped during replay runs",
		},
		[]string{"reason"}, // "duplicate", "unroutable", "irrelevant"
	)
)

// ObserveJobDuration records a processing-duration observation for an event type.
func ObserveJobDuration(eventType string, d time.Duration) {
	JobDuration.WithLabelValues(eventType).Observe(d.Seconds())
}
