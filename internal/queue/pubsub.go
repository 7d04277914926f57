// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package queue provides the message transport between webhook ingestion
// and event processing. Two drivers exist: an in-process Go channel for
// single-binary deployments and tests, and NATS JetStream for durable,
// multi-instance operation. Both are reached through Watermill, so the
// ingest and worker code never know which one is active.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/boardstream/boardstream/internal/config"
	"github.com/boardstream/boardstream/internal/logging"
)

// Driver names accepted in configuration.
const (
	DriverChannel = "channel"
	DriverNATS    = "nats"
)

// PubSub bundles the publisher and subscriber ends of the transport with
// whatever backing infrastructure they need.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	embedded *server.Server
}

// NewPubSub builds the transport selected by cfg.Driver. For the NATS
// driver with an empty URL, an embedded server is started and owned by the
// returned PubSub.
func NewPubSub(cfg config.QueueConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	switch cfg.Driver {
	case "", DriverChannel:
		ps := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
			Persistent:          false,
		}, logger)
		return &PubSub{Publisher: ps, Subscriber: ps}, nil

	case DriverNATS:
		return newNATSPubSub(cfg, logger)

	default:
		return nil, fmt.Errorf("queue: unknown driver %q", cfg.Driver)
	}
}

func newNATSPubSub(cfg config.QueueConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	url := cfg.URL
	var embedded *server.Server

	if cfg.EmbeddedServer || url == "" {
		ns, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		embedded = ns
		url = ns.ClientURL()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		shutdownEmbedded(embedded)
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			AckAsync:      false,
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		shutdownEmbedded(embedded)
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &PubSub{Publisher: pub, Subscriber: sub, embedded: embedded}, nil
}

func startEmbeddedServer(cfg config.QueueConfig) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "boardstream-events",
		Host:       "127.0.0.1",
		Port:       -1, // ephemeral port
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
		MaxPayload: 8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within timeout")
	}

	logging.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server started")
	return ns, nil
}

func shutdownEmbedded(ns *server.Server) {
	if ns != nil {
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

// Close shuts down both ends of the transport and the embedded server when
// one was started.
func (ps *PubSub) Close(ctx context.Context) error {
	var firstErr error
	if err := ps.Publisher.Close(); err != nil {
		firstErr = err
	}
	// The channel driver hands out one GoChannel as both ends; close it once.
	if any(ps.Subscriber) != any(ps.Publisher) {
		if err := ps.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ps.embedded != nil {
		ps.embedded.Shutdown()
		done := make(chan struct{})
		go func() {
			ps.embedded.WaitForShutdown()
			close(done)
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
	}
	return firstErr
}
