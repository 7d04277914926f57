// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package models

import "time"

// Error stages attached to API errors so callers can tell which phase of
// handling failed without parsing the message.
const (
	StageRequestValidation = "request_validation"
	StageFetchUpstream     = "fetch_upstream"
	StageParse             = "parse"
	StageInternal          = "internal"
)

// APIResponse is the common envelope for JSON responses.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the normalized error object returned to clients. Code is a
// stable machine-readable identifier; Stage tags the handling phase that
// produced the error. Stack traces never reach the client.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}
