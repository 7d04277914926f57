// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package models

import (
	"sort"
	"time"
)

// Board columns. Cards move backlog -> in_progress -> done based on issue
// state and labels.
const (
	ColumnBacklog    = "backlog"
	ColumnInProgress = "in_progress"
	ColumnDone       = "done"
)

// Card is a single board card, keyed by issue number or snapshot card id.
type Card struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Column       string    `json:"column"`
	Number       int       `json:"number,omitempty"`
	SourceLabels []string  `json:"source_labels,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BoardState is the reconstructed board for one repository: a mapping from
// card id to card. It is a derived, recomputable projection and is never
// persisted by the live pipeline.
type BoardState struct {
	Repo  string           `json:"repo"`
	Cards map[string]*Card `json:"cards"`
}

// NewBoardState creates an empty board for a repository.
func NewBoardState(repo string) *BoardState {
	return &BoardState{
		Repo:  repo,
		Cards: make(map[string]*Card),
	}
}

// Board is the column-ordered view served by the board query surface and
// written by the replay CLI.
type Board struct {
	Repo       string  `json:"repo"`
	Backlog    []*Card `json:"backlog"`
	InProgress []*Card `json:"in_progress"`
	Done       []*Card `json:"done"`
}

// ToBoard normalizes a BoardState into column lists. Cards are grouped by
// column; ordering within a column is by card id so output is deterministic.
func (s *BoardState) ToBoard() *Board {
	b := &Board{
		Repo:       s.Repo,
		Backlog:    []*Card{},
		InProgress: []*Card{},
		Done:       []*Card{},
	}
	for _, id := range sortedCardIDs(s.Cards) {
		c := s.Cards[id]
		switch c.Column {
		case ColumnDone:
			b.Done = append(b.Done, c)
		case ColumnInProgress:
			b.InProgress = append(b.InProgress, c)
		default:
			b.Backlog = append(b.Backlog, c)
		}
	}
	return b
}

func sortedCardIDs(cards map[string]*Card) []string {
	ids := make([]string, 0, len(cards))
	for id := range cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
