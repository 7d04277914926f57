// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package replay

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/models"
	"github.com/boardstream/boardstream/internal/store"
)

// logStore is an in-memory event log honoring the repo filter.
type logStore struct {
	events []*models.EventRecord
}

func (l *logStore) SaveEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (int64, error) {
	seq := int64(len(l.events) + 1)
	l.events = append(l.events, &models.EventRecord{
		SequenceID: seq,
		EventID:    eventID,
		EventType:  eventType,
		Payload:    payload,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
	})
	return seq, nil
}

func (l *logStore) GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error) {
	return nil, store.ErrNotFound
}

func (l *logStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]*models.EventRecord, error) {
	var out []*models.EventRecord
	for _, rec := range l.events {
		if filter.Repo != "" {
			ref := models.RepositoryFromPayload(rec.Payload)
			if ref == nil || ref.FullName != filter.Repo {
				continue
			}
		}
		if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (l *logStore) UpsertRepository(ctx context.Context, repo *models.Repository) error { return nil }

func (l *logStore) GetRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	return nil, store.ErrNotFound
}

func (l *logStore) Close() error { return nil }

func issueEvent(repo string, number int, title, issueState string, labels ...string) (string, string, []byte) {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = fmt.Sprintf(`{"name":%q}`, l)
	}
	payload := fmt.Sprintf(
		`{"repository":{"full_name":%q},"issue":{"number":%d,"title":%q,"state":%q,"labels":[%s]}}`,
		repo, number, title, issueState, strings.Join(quoted, ","))
	eventID := fmt.Sprintf("%s-issue-%d-%s", repo, number, issueState)
	return eventID, "issues", []byte(payload)
}

func mustSave(t *testing.T, l *logStore, eventID, eventType string, payload []byte) {
	t.Helper()
	if _, err := l.SaveEvent(context.Background(), eventID, eventType, payload); err != nil {
		t.Fatalf("seed event %s: %v", eventID, err)
	}
}

func TestReplayFoldsIssuesIntoColumns(t *testing.T) {
	log := &logStore{}
	id1, typ1, p1 := issueEvent("octo/repo", 1, "write docs", "open")
	id2, typ2, p2 := issueEvent("octo/repo", 2, "ship it", "open", "in-progress")
	id3, typ3, p3 := issueEvent("octo/repo", 3, "old bug", "closed")
	mustSave(t, log, id1, typ1, p1)
	mustSave(t, log, id2, typ2, p2)
	mustSave(t, log, id3, typ3, p3)

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Applied != 3 || res.Skipped != 0 {
		t.Errorf("applied=%d skipped=%d", res.Applied, res.Skipped)
	}

	board := res.Boards["octo/repo"].ToBoard()
	if len(board.Backlog) != 1 || board.Backlog[0].Title != "write docs" {
		t.Errorf("backlog = %+v", board.Backlog)
	}
	if len(board.InProgress) != 1 || board.InProgress[0].Title != "ship it" {
		t.Errorf("in progress = %+v", board.InProgress)
	}
	if len(board.Done) != 1 || board.Done[0].Title != "old bug" {
		t.Errorf("done = %+v", board.Done)
	}
}

func TestReplayLaterEventWins(t *testing.T) {
	log := &logStore{}
	mustSave(t, log, "e1", "issues",
		[]byte(`{"repository":{"full_name":"octo/repo"},"issue":{"number":1,"title":"task","state":"open"}}`))
	mustSave(t, log, "e2", "issues",
		[]byte(`{"repository":{"full_name":"octo/repo"},"issue":{"number":1,"title":"task","state":"closed"}}`))

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	card := res.Boards["octo/repo"].Cards["issue-1"]
	if card == nil || card.Column != models.ColumnDone {
		t.Errorf("card = %+v, want done column", card)
	}
}

func TestReplayUnlabeledEditKeepsColumn(t *testing.T) {
	log := &logStore{}
	mustSave(t, log, "e1", "issues",
		[]byte(`{"repository":{"full_name":"octo/repo"},"issue":{"number":1,"title":"task","state":"open","labels":[{"name":"in-progress"}]}}`))
	mustSave(t, log, "e2", "issues",
		[]byte(`{"repository":{"full_name":"octo/repo"},"issue":{"number":1,"title":"task (edited)","state":"open"}}`))

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	card := res.Boards["octo/repo"].Cards["issue-1"]
	if card == nil || card.Column != models.ColumnInProgress {
		t.Errorf("card = %+v, want in_progress column", card)
	}
	if card != nil && card.Title != "task (edited)" {
		t.Errorf("title = %q, want edited title", card.Title)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	log := &logStore{}
	for i := 1; i <= 20; i++ {
		state := "open"
		if i%3 == 0 {
			state = "closed"
		}
		id, typ, p := issueEvent("octo/repo", i, fmt.Sprintf("task %d", i), state)
		mustSave(t, log, id, typ, p)
	}

	engine := NewEngine(log)
	first, err := engine.Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("first Replay: %v", err)
	}
	second, err := engine.Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	if !reflect.DeepEqual(first.Boards["octo/repo"].ToBoard(), second.Boards["octo/repo"].ToBoard()) {
		t.Error("replaying the same log twice produced different boards")
	}
	if first.Applied != second.Applied || first.Skipped != second.Skipped {
		t.Errorf("counts differ: %d/%d vs %d/%d",
			first.Applied, first.Skipped, second.Applied, second.Skipped)
	}
}

func TestReplayDeduplicatesWithinRun(t *testing.T) {
	log := &logStore{}
	payload := []byte(`{"repository":{"full_name":"octo/repo"},"issue":{"number":1,"title":"open me","state":"open"}}`)
	reopened := []byte(`{"repository":{"full_name":"octo/repo"},"issue":{"number":1,"title":"open me","state":"closed"}}`)
	mustSave(t, log, "dup", "issues", payload)
	mustSave(t, log, "dup", "issues", reopened)

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Applied != 1 || res.Skipped != 1 {
		t.Errorf("applied=%d skipped=%d, want first occurrence only", res.Applied, res.Skipped)
	}
	card := res.Boards["octo/repo"].Cards["issue-1"]
	if card == nil || card.Column != models.ColumnBacklog {
		t.Errorf("card = %+v, want the first occurrence's column", card)
	}
}

func TestReplaySkipsIrrelevantAndUnroutable(t *testing.T) {
	log := &logStore{}
	mustSave(t, log, "ping", "ping", []byte(`{"zen":"ok"}`))
	mustSave(t, log, "push", "push", []byte(`{"repository":{"full_name":"octo/repo"}}`))
	id, typ, p := issueEvent("octo/repo", 1, "task", "open")
	mustSave(t, log, id, typ, p)

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Applied != 1 || res.Skipped != 2 {
		t.Errorf("applied=%d skipped=%d", res.Applied, res.Skipped)
	}
}

func TestReplayRepoFilter(t *testing.T) {
	log := &logStore{}
	id1, typ1, p1 := issueEvent("octo/repo", 1, "mine", "open")
	id2, typ2, p2 := issueEvent("other/repo", 2, "theirs", "open")
	mustSave(t, log, id1, typ1, p1)
	mustSave(t, log, id2, typ2, p2)

	res, err := NewEngine(log).Replay(context.Background(),
		Options{HandlerVersion: "v1", Repo: "octo/repo"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(res.Boards) != 1 {
		t.Fatalf("boards = %d, want 1", len(res.Boards))
	}
	if _, ok := res.Boards["octo/repo"]; !ok {
		t.Error("filtered repository missing from result")
	}
}

func TestReplayPrefixThenRemainderEqualsWhole(t *testing.T) {
	log := &logStore{}
	for i := 1; i <= 10; i++ {
		id, typ, p := issueEvent("octo/repo", i, fmt.Sprintf("task %d", i), "open")
		mustSave(t, log, id, typ, p)
	}

	whole, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("whole Replay: %v", err)
	}

	cut := log.events[4].CreatedAt
	prefixLog := &logStore{events: log.events}
	res, err := NewEngine(prefixLog).Replay(context.Background(),
		Options{HandlerVersion: "v1", To: cut})
	if err != nil {
		t.Fatalf("prefix Replay: %v", err)
	}
	prefixBoard := res.Boards["octo/repo"]

	remainder, err := NewEngine(prefixLog).Replay(context.Background(),
		Options{HandlerVersion: "v1", From: cut.Add(time.Nanosecond)})
	if err != nil {
		t.Fatalf("remainder Replay: %v", err)
	}
	for id, card := range remainder.Boards["octo/repo"].Cards {
		prefixBoard.Cards[id] = card
	}

	if !reflect.DeepEqual(whole.Boards["octo/repo"].ToBoard(), prefixBoard.ToBoard()) {
		t.Error("prefix then remainder diverged from replaying the whole log")
	}
}

func TestReplaySnapshotReplacesBoard(t *testing.T) {
	log := &logStore{}
	id, typ, p := issueEvent("octo/repo", 1, "stale card", "open")
	mustSave(t, log, id, typ, p)
	mustSave(t, log, "snap", "board_snapshot",
		[]byte(`{"repository":{"full_name":"octo/repo"},"cards":[`+
			`{"id":"card-a","title":"fresh","column":"in_progress"},`+
			`{"number":9,"title":"numbered","column":"bogus"}]}`))

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	cards := res.Boards["octo/repo"].Cards
	if _, ok := cards["issue-1"]; ok {
		t.Error("snapshot kept a pre-snapshot card")
	}
	if c := cards["card-a"]; c == nil || c.Column != models.ColumnInProgress {
		t.Errorf("card-a = %+v", c)
	}
	if c := cards["issue-9"]; c == nil || c.Column != models.ColumnBacklog {
		t.Errorf("unknown column not normalized to backlog: %+v", c)
	}
}

func TestReplayEventsApplyOnTopOfSnapshot(t *testing.T) {
	log := &logStore{}
	opened, typ, p := issueEvent("octo/repo", 1, "task", "open")
	mustSave(t, log, opened, typ, p)
	mustSave(t, log, "snap", "board_snapshot",
		[]byte(`{"repository":{"full_name":"octo/repo"},"cards":[`+
			`{"id":"card-a","title":"fresh","column":"backlog"}]}`))
	closed, typ2, p2 := issueEvent("octo/repo", 1, "task", "closed")
	mustSave(t, log, closed, typ2, p2)

	res, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	cards := res.Boards["octo/repo"].Cards
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want snapshot card plus post-snapshot issue", len(cards))
	}
	if c := cards["card-a"]; c == nil {
		t.Error("snapshot card lost")
	}
	if c := cards["issue-1"]; c == nil || c.Column != models.ColumnDone {
		t.Errorf("post-snapshot issue = %+v, want done", c)
	}
}

func TestReplayUnknownHandlerVersion(t *testing.T) {
	_, err := NewEngine(&logStore{}).Replay(context.Background(),
		Options{HandlerVersion: "v99"})
	if err == nil {
		t.Fatal("unknown handler version accepted")
	}
	if !strings.Contains(err.Error(), "v99") {
		t.Errorf("error does not name the version: %v", err)
	}
}

func TestReplayHandlerErrorAborts(t *testing.T) {
	log := &logStore{}
	mustSave(t, log, "bad", "issues",
		[]byte(`{"repository":{"full_name":"octo/repo"},"issue":"not an object"}`))

	_, err := NewEngine(log).Replay(context.Background(), Options{HandlerVersion: "v1"})
	if err == nil {
		t.Fatal("malformed payload did not abort the replay")
	}
}

func TestReplayDryRunStillFolds(t *testing.T) {
	log := &logStore{}
	id, typ, p := issueEvent("octo/repo", 1, "task", "open")
	mustSave(t, log, id, typ, p)

	res, err := NewEngine(log).Replay(context.Background(),
		Options{HandlerVersion: "v1", DryRun: true})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Applied != 1 || len(res.Boards) != 1 {
		t.Errorf("dry run lost the fold: applied=%d boards=%d", res.Applied, len(res.Boards))
	}
}

func TestVersionsListsV1(t *testing.T) {
	found := false
	for _, v := range Versions() {
		if v == "v1" {
			found = true
		}
	}
	if !found {
		t.Errorf("Versions() = %v, want v1 present", Versions())
	}
}
