// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Command server runs the webhook ingestion pipeline: HTTP ingress, job
// queue, event worker, and the board query surface, in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boardstream/boardstream/internal/api"
	"github.com/boardstream/boardstream/internal/board"
	"github.com/boardstream/boardstream/internal/cache"
	"github.com/boardstream/boardstream/internal/config"
	"github.com/boardstream/boardstream/internal/github"
	"github.com/boardstream/boardstream/internal/ingest"
	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/queue"
	"github.com/boardstream/boardstream/internal/state"
	"github.com/boardstream/boardstream/internal/store"
	"github.com/boardstream/boardstream/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("queue_driver", cfg.Queue.Driver).
		Msg("Starting boardstream server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable event store (optionally mirrored during migrations).
	primary, err := store.NewDuckDB(store.Options{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
	})
	if err != nil {
		return err
	}
	var events store.Store = primary
	if cfg.Database.Mode == "mirror" {
		mirror, err := store.NewDuckDB(store.Options{
			Path:      cfg.Database.MirrorPath,
			MaxMemory: cfg.Database.MaxMemory,
		})
		if err != nil {
			return err
		}
		events = store.NewMirrored(primary, mirror)
	}
	defer events.Close()

	states, err := state.New(state.Options{
		Path:     cfg.State.Path,
		InMemory: cfg.State.InMemory,
	})
	if err != nil {
		return err
	}
	defer states.Close()

	caches, err := cache.New(cache.Options{
		Path:       cfg.Cache.Path,
		InMemory:   cfg.Cache.InMemory,
		DefaultTTL: cfg.Cache.TTL,
	})
	if err != nil {
		return err
	}
	defer caches.Close()

	limiter := github.NewRateLimiter(cfg.GitHub.BackoffBase, cfg.GitHub.BackoffCap)
	client := github.NewClient(cfg.GitHub, limiter)
	if !client.Configured() {
		logging.Warn().Msg("GitHub token not configured, repository refresh disabled")
	}

	// Transport and consumer.
	wmLogger := queue.NewLoggerAdapter()
	pubsub, err := queue.NewPubSub(cfg.Queue, wmLogger)
	if err != nil {
		return err
	}

	router, err := queue.NewRouter(cfg.Queue, pubsub.Publisher, wmLogger)
	if err != nil {
		return err
	}

	processor := worker.New(states, caches, events, client, cfg.State.LockLease)
	router.AddConsumerHandler("event-worker", cfg.Queue.Topic, pubsub.Subscriber, processor.Handle)

	routerErr := make(chan error, 1)
	go func() {
		routerErr <- router.Run(ctx)
	}()
	<-router.Running()

	enqueuer := ingest.NewEnqueuer(states, pubsub.Publisher, cfg.Queue.Topic)
	boards := board.NewService(client, caches, cfg.Board.FilePath, cfg.Board.CacheTTL)
	handler := api.NewHandler(cfg, enqueuer, boards)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(cfg, handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-routerErr:
		if err != nil {
			return fmt.Errorf("queue router: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.CloseTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := router.Close(); err != nil {
		logging.Warn().Err(err).Msg("Router close incomplete")
	}
	if err := pubsub.Close(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Queue close incomplete")
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
