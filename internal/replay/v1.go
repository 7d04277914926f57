// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package replay

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/models"
)

func init() {
	Register(handlerV1{})
}

// handlerV1 is the original fold semantics. Two event families matter:
// issue events upsert a single card, snapshot events replace the whole
// board. Everything else is irrelevant to boards.
type handlerV1 struct{}

func (handlerV1) Version() string { return "v1" }

type v1IssuePayload struct {
	Action string `json:"action"`
	Issue  *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
}

type v1SnapshotPayload struct {
	Cards []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Column string `json:"column"`
		Number int    `json:"number"`
	} `json:"cards"`
}

func (handlerV1) Apply(state *models.BoardState, rec *models.EventRecord) (bool, error) {
	switch rec.EventType {
	case "issues", "issue":
		return applyIssueV1(state, rec)
	case "board_snapshot":
		return applySnapshotV1(state, rec)
	default:
		return false, nil
	}
}

// applyIssueV1 upserts the card for the issue. A closed issue or a
// done-family label lands in done, an in-progress-family label in
// in_progress. An open issue without a column-bearing label keeps the
// column the card already sits in; a card first seen that way starts
// in backlog.
func applyIssueV1(state *models.BoardState, rec *models.EventRecord) (bool, error) {
	var p v1IssuePayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return false, fmt.Errorf("decode issue payload: %w", err)
	}
	if p.Issue == nil || p.Issue.Number == 0 {
		return false, nil
	}

	labels := make([]string, 0, len(p.Issue.Labels))
	for _, l := range p.Issue.Labels {
		labels = append(labels, l.Name)
	}

	id := "issue-" + strconv.Itoa(p.Issue.Number)
	column := models.ColumnBacklog
	if prev, ok := state.Cards[id]; ok {
		column = prev.Column
	}
	if c, ok := columnForIssueV1(p.Issue.State, labels); ok {
		column = c
	}

	state.Cards[id] = &models.Card{
		ID:           id,
		Title:        p.Issue.Title,
		Number:       p.Issue.Number,
		Column:       column,
		SourceLabels: labels,
		UpdatedAt:    rec.CreatedAt,
	}
	return true, nil
}

// columnForIssueV1 reports the column the event moves the issue to, if
// the event carries enough signal to decide one.
func columnForIssueV1(issueState string, labels []string) (string, bool) {
	if strings.EqualFold(issueState, "closed") {
		return models.ColumnDone, true
	}
	for _, l := range labels {
		switch strings.ToLower(l) {
		case "done", "closed":
			return models.ColumnDone, true
		case "in-progress", "in progress", "doing":
			return models.ColumnInProgress, true
		}
	}
	return "", false
}

// applySnapshotV1 replaces the board wholesale. A snapshot is an authority
// statement about the entire board; merging with prior cards would let
// deleted cards survive.
func applySnapshotV1(state *models.BoardState, rec *models.EventRecord) (bool, error) {
	var p v1SnapshotPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return false, fmt.Errorf("decode snapshot payload: %w", err)
	}

	state.Cards = make(map[string]*models.Card, len(p.Cards))
	for _, c := range p.Cards {
		id := c.ID
		if id == "" && c.Number > 0 {
			id = "issue-" + strconv.Itoa(c.Number)
		}
		if id == "" {
			continue
		}
		column := c.Column
		switch column {
		case models.ColumnBacklog, models.ColumnInProgress, models.ColumnDone:
		default:
			column = models.ColumnBacklog
		}
		state.Cards[id] = &models.Card{
			ID:        id,
			Title:     c.Title,
			Number:    c.Number,
			Column:    column,
			UpdatedAt: rec.CreatedAt,
		}
	}
	return true, nil
}
