// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/models"
)

// respondJSON writes a success envelope.
func respondJSON(w http.ResponseWriter, status int, data interface{}, queryStart time.Time) {
	resp := models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(queryStart).Milliseconds(),
		},
	}
	writeJSON(w, status, &resp)
}

// respondError writes an error envelope. stage tells the caller which part
// of the request pipeline failed.
func respondError(w http.ResponseWriter, status int, code, message, stage string) {
	resp := models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Stage:   stage,
		},
	}
	writeJSON(w, status, &resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Response write failed")
	}
}

// sanitizeLogValue strips control characters from request-derived strings
// before they reach the log, preventing log injection.
func sanitizeLogValue(s string) string {
	const max = 200
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
		if len(out) >= max {
			break
		}
	}
	return string(out)
}
