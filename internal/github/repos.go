// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// FileContent is a decoded repository file.
type FileContent struct {
	Path    string
	SHA     string
	Content []byte
}

// Issue is the subset of an issue the board pipeline cares about.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	State  string  `json:"state"`
	Labels []Label `json:"labels"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// FetchRepository returns the repository object as raw JSON. The worker
// stores it verbatim; parsing happens at query time so upstream schema
// additions survive a round trip.
func (c *Client) FetchRepository(ctx context.Context, owner, repo string) (json.RawMessage, error) {
	body, _, err := c.do(ctx, "fetch_repository", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo)), nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// FetchFileContent fetches a file through the contents API and decodes its
// base64 payload. The returned SHA is the blob SHA, usable as a cache
// validator.
func (c *Client) FetchFileContent(ctx context.Context, owner, repo, path string) (*FileContent, error) {
	body, _, err := c.do(ctx, "fetch_file", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/contents/%s",
			url.PathEscape(owner), url.PathEscape(repo), escapePath(path)), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Path     string `json:"path"`
		SHA      string `json:"sha"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("github: decode contents response: %w", err)
	}
	if payload.Encoding != "base64" {
		return nil, fmt.Errorf("github: unexpected content encoding %q for %s", payload.Encoding, path)
	}

	// GitHub inserts newlines into the base64 stream.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("github: decode file content: %w", err)
	}

	return &FileContent{Path: payload.Path, SHA: payload.SHA, Content: raw}, nil
}

// ListIssues returns all issues of a repository, open and closed, walking
// pages until a short page signals the end.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	var all []Issue
	for page := 1; ; page++ {
		query := url.Values{
			"state":    {"all"},
			"per_page": {strconv.Itoa(c.pageSize)},
			"page":     {strconv.Itoa(page)},
		}
		body, _, err := c.do(ctx, "list_issues", http.MethodGet,
			fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(owner), url.PathEscape(repo)), query)
		if err != nil {
			return nil, err
		}

		var issues []Issue
		if err := json.Unmarshal(body, &issues); err != nil {
			return nil, fmt.Errorf("github: decode issues page %d: %w", page, err)
		}
		all = append(all, issues...)

		if len(issues) < c.pageSize {
			return all, nil
		}
	}
}

// escapePath escapes each segment of a repository-relative file path while
// preserving the separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
