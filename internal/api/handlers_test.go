// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/board"
	"github.com/boardstream/boardstream/internal/cache"
	"github.com/boardstream/boardstream/internal/config"
	"github.com/boardstream/boardstream/internal/github"
	"github.com/boardstream/boardstream/internal/ingest"
	"github.com/boardstream/boardstream/internal/models"
	"github.com/boardstream/boardstream/internal/state"
)

const testSecret = "webhook-secret"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// noopPublisher accepts every message; these tests exercise the HTTP
// surface, not the queue.
type noopPublisher struct{}

func (noopPublisher) Publish(topic string, msgs ...*message.Message) error { return nil }

func (noopPublisher) Close() error { return nil }

func newTestServer(t *testing.T) (http.Handler, *state.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Environment = config.EnvDevelopment
	cfg.Server.RateLimitDisabled = true
	cfg.GitHub.WebhookSecret = testSecret

	states, err := state.New(state.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { states.Close() })

	c, err := cache.New(cache.Options{InMemory: true, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	enqueuer := ingest.NewEnqueuer(states, noopPublisher{}, "events.github")
	boards := board.NewService(github.NewClient(config.GitHubConfig{}, nil), c, "", time.Minute)
	return NewRouter(cfg, NewHandler(cfg, enqueuer, boards)), states
}

func postWebhook(t *testing.T, srv http.Handler, body []byte, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/github", bytes.NewReader(body))
	req.Header.Set(headerSignature, sign(body))
	req.Header.Set(headerEvent, "issues")
	req.Header.Set(headerDelivery, "delivery-1")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
	return &resp
}

func TestWebhookAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	body := []byte(`{"action":"opened","repository":{"full_name":"octo/repo"}}`)

	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Status != "success" {
		t.Errorf("envelope status = %q", resp.Status)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", resp.Data)
	}
	if data["event_id"] != "delivery-1" {
		t.Errorf("event_id = %v", data["event_id"])
	}
	if data["duplicate"] != false {
		t.Errorf("duplicate = %v", data["duplicate"])
	}
}

func TestWebhookRedelivery(t *testing.T) {
	srv, _ := newTestServer(t)
	body := []byte(`{"action":"opened"}`)

	first := postWebhook(t, srv, body, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d", first.Code)
	}
	second := postWebhook(t, srv, body, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", second.Code)
	}
	data := decodeEnvelope(t, second).Data.(map[string]interface{})
	if data["duplicate"] != true {
		t.Errorf("duplicate = %v", data["duplicate"])
	}
}

func TestWebhookBadSignature(t *testing.T) {
	srv, states := newTestServer(t)
	body := []byte(`{"action":"opened"}`)

	rec := postWebhook(t, srv, body, func(r *http.Request) {
		r.Header.Set(headerSignature, "sha256=deadbeef")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "invalid_signature" {
		t.Errorf("error = %+v", resp.Error)
	}
	if resp.Error.Stage != models.StageRequestValidation {
		t.Errorf("stage = %q", resp.Error.Stage)
	}
	if _, err := states.Get("delivery-1"); err == nil {
		t.Error("rejected delivery left a state record")
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postWebhook(t, srv, []byte(`{}`), func(r *http.Request) {
		r.Header.Del(headerSignature)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookMissingEventType(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postWebhook(t, srv, []byte(`{}`), func(r *http.Request) {
		r.Header.Del(headerEvent)
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "missing_event_type" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestBoardEndpointUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/repos/octo/repo/board", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "not_configured" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("del\nivery\x00-1"); got != "delivery-1" {
		t.Errorf("sanitized = %q", got)
	}
}
