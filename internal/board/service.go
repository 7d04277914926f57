// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package board serves the live board view for a repository, parsed from
// its planning file. Results are cached with the file's blob SHA as the
// validator, so unchanged boards answer 304 without re-parsing.
package board

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/cache"
	"github.com/boardstream/boardstream/internal/github"
	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/models"
	"github.com/boardstream/boardstream/internal/parser"
)

// Result is the outcome of a board lookup, shaped for direct translation
// into an HTTP response.
type Result struct {
	Status    int
	Board     *models.Board
	Etag      string
	FetchedAt time.Time
	Cached    bool
}

// Service resolves boards.
type Service struct {
	client   *github.Client
	cache    *cache.Cache
	filePath string
	cacheTTL time.Duration
}

// NewService wires the board query path. filePath is the repository file
// parsed into a board.
func NewService(client *github.Client, c *cache.Cache, filePath string, cacheTTL time.Duration) *Service {
	if filePath == "" {
		filePath = "Bitacora.md"
	}
	return &Service{client: client, cache: c, filePath: filePath, cacheTTL: cacheTTL}
}

// cachedBoard is the cache entry shape.
type cachedBoard struct {
	Board     *models.Board `json:"board"`
	Etag      string        `json:"etag"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// GetBoard returns the board for owner/repo. ifNoneMatch is the client's
// validator; when it matches the current file SHA the result is a bare 304.
// Upstream conditions map directly: missing file or repository is 404,
// exhausted API allowance is 429, anything else upstream is 502.
func (s *Service) GetBoard(ctx context.Context, owner, repo, ifNoneMatch string) *Result {
	fullName := owner + "/" + repo

	if entry, ok := s.fromCache(fullName); ok {
		if ifNoneMatch != "" && ifNoneMatch == entry.Etag {
			return &Result{Status: http.StatusNotModified, Etag: entry.Etag, Cached: true}
		}
		return &Result{
			Status:    http.StatusOK,
			Board:     entry.Board,
			Etag:      entry.Etag,
			FetchedAt: entry.FetchedAt,
			Cached:    true,
		}
	}

	file, err := s.client.FetchFileContent(ctx, owner, repo, s.filePath)
	if err != nil {
		return s.errorResult(fullName, err)
	}

	parsed, err := parser.Parse(fullName, file.Content)
	if err != nil {
		logging.Error().Err(err).Str("repo", fullName).Msg("Board file unparseable")
		return &Result{Status: http.StatusUnprocessableEntity}
	}

	entry := &cachedBoard{Board: parsed, Etag: file.SHA, FetchedAt: time.Now().UTC()}
	s.toCache(fullName, entry)

	if ifNoneMatch != "" && ifNoneMatch == entry.Etag {
		return &Result{Status: http.StatusNotModified, Etag: entry.Etag}
	}
	return &Result{
		Status:    http.StatusOK,
		Board:     entry.Board,
		Etag:      entry.Etag,
		FetchedAt: entry.FetchedAt,
	}
}

func (s *Service) errorResult(fullName string, err error) *Result {
	switch {
	case errors.Is(err, github.ErrNotConfigured):
		return &Result{Status: http.StatusServiceUnavailable}
	case github.IsNotFound(err):
		return &Result{Status: http.StatusNotFound}
	case github.IsRateLimited(err):
		return &Result{Status: http.StatusTooManyRequests}
	default:
		logging.Error().Err(err).Str("repo", fullName).Msg("Board fetch failed")
		return &Result{Status: http.StatusBadGateway}
	}
}

func (s *Service) fromCache(fullName string) (*cachedBoard, bool) {
	data, err := s.cache.Get(cache.BoardKey(fullName))
	if err != nil {
		return nil, false
	}
	var entry cachedBoard
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (s *Service) toCache(fullName string, entry *cachedBoard) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.cache.Set(cache.BoardKey(fullName), data, s.cacheTTL); err != nil {
		logging.Warn().Err(err).Str("repo", fullName).Msg("Board cache write failed")
	}
}
