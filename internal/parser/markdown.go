// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package parser extracts a board from a markdown planning file. The format
// is deliberately small: second-level headings name columns, list items
// under a heading are cards. Unknown headings and prose are ignored.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/boardstream/boardstream/internal/models"
)

// headingColumns maps recognized section headings to board columns.
var headingColumns = map[string]string{
	"backlog":     models.ColumnBacklog,
	"todo":        models.ColumnBacklog,
	"to do":       models.ColumnBacklog,
	"in progress": models.ColumnInProgress,
	"doing":       models.ColumnInProgress,
	"done":        models.ColumnDone,
	"completed":   models.ColumnDone,
}

// Parse reads a markdown document and returns the board it describes.
// A document with no recognized sections yields an empty board, not an
// error; the file simply is not a board.
func Parse(repo string, content []byte) (*models.Board, error) {
	board := &models.Board{
		Repo:       repo,
		Backlog:    []*models.Card{},
		InProgress: []*models.Card{},
		Done:       []*models.Card{},
	}
	var current string
	item := 0

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if heading, ok := cutHeading(line); ok {
			current = headingColumns[strings.ToLower(heading)]
			continue
		}
		if current == "" {
			continue
		}

		title, ok := cutListItem(line)
		if !ok {
			continue
		}
		item++
		card := &models.Card{
			ID:     fmt.Sprintf("item-%d", item),
			Title:  title,
			Column: current,
		}
		switch current {
		case models.ColumnBacklog:
			board.Backlog = append(board.Backlog, card)
		case models.ColumnInProgress:
			board.InProgress = append(board.InProgress, card)
		case models.ColumnDone:
			board.Done = append(board.Done, card)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return board, nil
}

// cutHeading returns the text of a second-level heading.
func cutHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "## ") {
		return "", false
	}
	return strings.TrimSpace(trimmed[3:]), true
}

// cutListItem returns the text of a markdown list item, with any task
// checkbox stripped.
func cutListItem(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	var rest string
	switch {
	case strings.HasPrefix(trimmed, "- "):
		rest = trimmed[2:]
	case strings.HasPrefix(trimmed, "* "):
		rest = trimmed[2:]
	default:
		return "", false
	}

	rest = strings.TrimSpace(rest)
	for _, box := range []string{"[ ]", "[x]", "[X]"} {
		if strings.HasPrefix(rest, box) {
			rest = strings.TrimSpace(rest[len(box):])
			break
		}
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
