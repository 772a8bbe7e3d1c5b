// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

//go:build nats

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/notifyhub/internal/config"
	"github.com/tomtom215/notifyhub/internal/logging"
	"github.com/tomtom215/notifyhub/internal/relay"
)

// Available is set when the NATS transport is compiled in.
const Available = true

// Subscriber consumes cfg.Subject and publishes each message into the hub.
type Subscriber struct {
	cfg    config.NATSConfig
	hub    Publisher
	logger watermill.LoggerAdapter
	log    zerolog.Logger

	mu      sync.Mutex
	sub     message.Subscriber
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewSubscriber creates a subscriber. Nothing connects until Start.
func NewSubscriber(cfg config.NATSConfig, hub Publisher) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		hub:    hub,
		logger: watermill.NewSlogLogger(logging.NewSlogLogger()),
		log:    logging.WithComponent("nats-ingest"),
	}
}

// Start connects, subscribes and begins consuming in the background.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New("ingest subscriber already running")
	}

	natsOpts := []natsgo.Option{
		natsgo.Name(relay.ServerName),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				s.log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			s.log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              s.cfg.URL,
		QueueGroupPrefix: s.cfg.QueueGroup,
		SubscribersCount: 1,
		CloseTimeout:     5 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, s.logger)
	if err != nil {
		return fmt.Errorf("create NATS subscriber: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	messages, err := sub.Subscribe(runCtx, s.cfg.Subject)
	if err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Subject, err)
	}

	s.sub = sub
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.consume(runCtx, messages, s.done)

	s.log.Info().
		Str("url", s.cfg.URL).
		Str("subject", s.cfg.Subject).
		Str("queue_group", s.cfg.QueueGroup).
		Msg("NATS ingest started")
	return nil
}

func (s *Subscriber) consume(ctx context.Context, messages <-chan *message.Message, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			recipients, err := deliver(ctx, s.hub, msg.Payload)
			if err != nil {
				s.log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping ingest message")
			} else {
				s.log.Debug().Str("message_uuid", msg.UUID).Int("recipients", recipients).Msg("ingest message relayed")
			}
			// Core NATS has no redelivery; ack either way.
			msg.Ack()
		}
	}
}

// Shutdown stops consuming and closes the broker connection.
func (s *Subscriber) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}

	s.cancel()
	if err := s.sub.Close(); err != nil {
		s.log.Warn().Err(err).Msg("NATS subscriber close failed")
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		s.log.Warn().Msg("NATS ingest did not stop before shutdown deadline")
	}

	s.running.Store(false)
	s.log.Info().Msg("NATS ingest stopped")
}

// IsRunning reports whether Start succeeded and Shutdown has not run.
func (s *Subscriber) IsRunning() bool {
	return s.running.Load()
}
