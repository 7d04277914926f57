// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/boardstream/boardstream/internal/board"
	"github.com/boardstream/boardstream/internal/config"
	"github.com/boardstream/boardstream/internal/ingest"
	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/metrics"
	"github.com/boardstream/boardstream/internal/models"
	"github.com/boardstream/boardstream/internal/webhook"
)

// GitHub delivery headers.
const (
	headerSignature = "X-Hub-Signature-256"
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"
)

// maxWebhookBody caps inbound delivery size.
const maxWebhookBody = 5 << 20

// Handler owns the HTTP endpoints.
type Handler struct {
	cfg      *config.Config
	enqueuer *ingest.Enqueuer
	boards   *board.Service
}

// NewHandler wires the endpoint dependencies.
func NewHandler(cfg *config.Config, enqueuer *ingest.Enqueuer, boards *board.Service) *Handler {
	return &Handler{cfg: cfg, enqueuer: enqueuer, boards: boards}
}

// Webhook receives a GitHub delivery. The signature is verified over the
// raw body before any parsing. Accepted events answer 201; redeliveries of
// a known event answer 200 so GitHub stops retrying.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "body_read_failed", "could not read request body",
			models.StageRequestValidation)
		return
	}

	ok := webhook.Verify(h.cfg.GitHub.WebhookSecret, body, r.Header.Get(headerSignature),
		h.cfg.Server.IsProduction())
	if !ok {
		metrics.EventsRejected.WithLabelValues("bad_signature").Inc()
		logging.Warn().
			Str("delivery", sanitizeLogValue(r.Header.Get(headerDelivery))).
			Msg("Webhook signature rejected")
		respondError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed",
			models.StageRequestValidation)
		return
	}

	eventType := r.Header.Get(headerEvent)
	if eventType == "" {
		metrics.EventsRejected.WithLabelValues("missing_event_type").Inc()
		respondError(w, http.StatusBadRequest, "missing_event_type", "X-GitHub-Event header required",
			models.StageRequestValidation)
		return
	}

	result, err := h.enqueuer.Enqueue(r.Header.Get(headerDelivery), eventType, body)
	if err != nil {
		logging.Error().Err(err).Msg("Enqueue failed")
		respondError(w, http.StatusInternalServerError, "enqueue_failed", "event could not be accepted",
			models.StageInternal)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]interface{}{
		"event_id":  result.EventID,
		"duplicate": result.Duplicate,
	}, start)
}

// Board serves the reconstructed board for a repository with ETag
// revalidation.
func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	if owner == "" || repo == "" {
		respondError(w, http.StatusBadRequest, "missing_path_params", "owner and repo required",
			models.StageRequestValidation)
		return
	}

	res := h.boards.GetBoard(r.Context(), owner, repo, r.Header.Get("If-None-Match"))
	if res.Etag != "" {
		w.Header().Set("ETag", res.Etag)
	}

	switch res.Status {
	case http.StatusOK:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"board":      res.Board,
			"fetched_at": res.FetchedAt,
			"cached":     res.Cached,
		}, start)
	case http.StatusNotModified:
		w.WriteHeader(http.StatusNotModified)
	case http.StatusNotFound:
		respondError(w, http.StatusNotFound, "board_not_found", "repository or board file not found",
			models.StageFetchUpstream)
	case http.StatusTooManyRequests:
		respondError(w, http.StatusTooManyRequests, "rate_limited", "upstream rate limit exhausted",
			models.StageFetchUpstream)
	case http.StatusUnprocessableEntity:
		respondError(w, http.StatusUnprocessableEntity, "board_unparseable", "board file could not be parsed",
			models.StageParse)
	case http.StatusServiceUnavailable:
		respondError(w, http.StatusServiceUnavailable, "not_configured", "upstream API access not configured",
			models.StageFetchUpstream)
	default:
		respondError(w, http.StatusBadGateway, "upstream_error", "upstream fetch failed",
			models.StageFetchUpstream)
	}
}

// HealthLive is the liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady is the readiness probe.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"}, time.Now())
}

// Health reports overall service health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"environment": h.cfg.Server.Environment,
	}, time.Now())
}
