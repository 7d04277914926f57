// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/models"
)

// WriteBoards renders each reconstructed board to <dir>/<owner>__<repo>.json.
// Output is the normalized column view, so files are byte-comparable across
// runs.
func WriteBoards(dir string, boards map[string]*models.BoardState) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	for repo, state := range boards {
		board := state.ToBoard()
		data, err := json.MarshalIndent(board, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal board %s: %w", repo, err)
		}
		path := filepath.Join(dir, boardFileName(repo))
		if err := os.WriteFile(path, append(data, '\n'), 0o640); err != nil {
			return fmt.Errorf("write board %s: %w", repo, err)
		}
		logging.Info().Str("repo", repo).Str("path", path).Msg("Board written")
	}
	return nil
}

// boardFileName flattens a repository full name into a safe file name.
func boardFileName(repo string) string {
	safe := strings.NewReplacer("/", "__", "\\", "__", "..", "_").Replace(repo)
	return safe + ".json"
}
