// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Command replay reconstructs board state from the persisted event log and
// writes one JSON board per repository.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/boardstream/boardstream/internal/config"
	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/replay"
	"github.com/boardstream/boardstream/internal/store"
)

func main() {
	var (
		repo    = flag.String("repo", "", "restrict replay to one repository (owner/name)")
		from    = flag.String("from", "", "start of time window (RFC 3339)")
		to      = flag.String("to", "", "end of time window (RFC 3339)")
		out     = flag.String("out", "boards", "output directory for board files")
		handler = flag.String("handler", "v1", "handler version")
		dryRun  = flag.Bool("dry-run", false, "count applicable events without writing boards")
	)
	flag.Parse()

	if err := run(*repo, *from, *to, *out, *handler, *dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(repo, fromStr, toStr, out, handler string, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
	})

	opts := replay.Options{
		HandlerVersion: handler,
		Repo:           repo,
		DryRun:         dryRun,
	}
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return fmt.Errorf("parse -from: %w", err)
		}
		opts.From = t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return fmt.Errorf("parse -to: %w", err)
		}
		opts.To = t
	}

	events, err := store.NewDuckDB(store.Options{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
	})
	if err != nil {
		return err
	}
	defer events.Close()

	engine := replay.NewEngine(events)
	result, err := engine.Replay(context.Background(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("applied %d events, skipped %d, %d board(s)\n",
		result.Applied, result.Skipped, len(result.Boards))

	if dryRun {
		return nil
	}
	return replay.WriteBoards(out, result.Boards)
}
