// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package replay

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/models"
)

func TestWriteBoards(t *testing.T) {
	dir := t.TempDir()
	board := models.NewBoardState("octo/repo")
	board.Cards["issue-1"] = &models.Card{ID: "issue-1", Title: "task", Column: models.ColumnDone}

	err := WriteBoards(dir, map[string]*models.BoardState{"octo/repo": board})
	if err != nil {
		t.Fatalf("WriteBoards: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "octo__repo.json"))
	if err != nil {
		t.Fatalf("read board file: %v", err)
	}
	var out models.Board
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode board file: %v", err)
	}
	if out.Repo != "octo/repo" {
		t.Errorf("repo = %q", out.Repo)
	}
	if len(out.Done) != 1 || out.Done[0].Title != "task" {
		t.Errorf("done = %+v", out.Done)
	}
}

func TestWriteBoardsSanitizesFileName(t *testing.T) {
	dir := t.TempDir()
	board := models.NewBoardState("../evil/repo")

	if err := WriteBoards(dir, map[string]*models.BoardState{"../evil/repo": board}); err != nil {
		t.Fatalf("WriteBoards: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if filepath.Dir(filepath.Join(dir, name)) != dir {
		t.Errorf("board written outside target dir: %q", name)
	}
}
