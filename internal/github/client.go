// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package github is the outbound adapter for the GitHub REST API. It owns
// request pacing (RateLimiter), retry with exponential backoff, and circuit
// breaking, so the rest of the system only ever sees typed results and
// normalized errors.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/boardstream/boardstream/internal/config"
	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/metrics"
)

// maxBodyBytes caps response reads. Repository and issue payloads are far
// smaller; anything larger is malformed or hostile.
const maxBodyBytes = 8 << 20

// apiResponse is the normalized result of a single successful exchange.
type apiResponse struct {
	body    []byte
	headers http.Header
}

// Client calls the GitHub REST API. Construct with NewClient; the zero
// value is not usable. A client built without a token is a valid
// unconfigured client whose operations all return ErrNotConfigured, so
// callers do not need a separate nil-check path.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	limiter     *RateLimiter
	breaker     *gobreaker.CircuitBreaker[*apiResponse]
	maxAttempts int
	pageSize    int
	configured  bool
}

// NewClient builds a client from configuration. The limiter is injected so
// callers sharing one GitHub account share one allowance.
func NewClient(cfg config.GitHubConfig, limiter *RateLimiter) *Client {
	if limiter == nil {
		limiter = NewRateLimiter(cfg.BackoffBase, cfg.BackoffCap)
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	baseURL := strings.TrimSuffix(cfg.APIURL, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "github-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// Rate limiting is pacing, not upstream failure; it must not
			// trip the breaker.
			return err == nil || IsRateLimited(err) || IsNotFound(err)
		},
	})

	return &Client{
		baseURL:     baseURL,
		token:       cfg.Token,
		httpClient:  &http.Client{Timeout: cfg.FetchTimeout},
		limiter:     limiter,
		breaker:     breaker,
		maxAttempts: maxAttempts,
		pageSize:    pageSize,
		configured:  cfg.Token != "",
	}
}

// Configured reports whether the client holds an API token.
func (c *Client) Configured() bool {
	return c.configured
}

// Limiter exposes the pacing state for observability endpoints.
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// do runs one API call with pacing, retry, and circuit breaking. Every
// attempt acquires allowance first and feeds response headers back into the
// limiter, success or failure, so the local allowance estimate tracks the
// server's. Rate-limited and server-side failures back off and retry up to
// maxAttempts; other failures return immediately.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values) ([]byte, http.Header, error) {
	if !c.configured {
		return nil, nil, ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.limiter.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}

		resp, err := c.breaker.Execute(func() (*apiResponse, error) {
			return c.exchange(ctx, method, path, query)
		})
		if err == nil {
			c.limiter.UpdateFromHeaders(resp.headers)
			metrics.GitHubRequests.WithLabelValues(operation, "success").Inc()
			return resp.body, resp.headers, nil
		}

		var re *RequestError
		if errors.As(err, &re) {
			c.limiter.UpdateFromHeaders(re.RateHeaders)
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.maxAttempts-1 {
			break
		}

		outcome := "retry"
		if IsRateLimited(err) {
			outcome = "rate_limited"
		}
		metrics.GitHubRequests.WithLabelValues(operation, outcome).Inc()
		logging.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Msg("GitHub request failed, backing off")

		if err := c.limiter.Backoff(ctx, attempt); err != nil {
			return nil, nil, err
		}
	}

	metrics.GitHubRequests.WithLabelValues(operation, "error").Inc()
	return nil, nil, lastErr
}

// exchange performs exactly one HTTP round trip and normalizes the result.
func (c *Client) exchange(ctx context.Context, method, path string, query url.Values) (*apiResponse, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("github: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			StatusCode:  resp.StatusCode,
			URL:         u,
			Message:     truncate(string(body), 256),
			RateHeaders: resp.Header,
		}
	}

	return &apiResponse{body: body, headers: resp.Header}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
