// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/notifyhub/internal/metrics"
	"github.com/tomtom215/notifyhub/internal/relay"
)

// DefaultSender is reported as "from" when a message does not name one.
const DefaultSender = "nats"

// ErrNotEnabled is returned by Start in builds without the nats tag.
var ErrNotEnabled = errors.New("NATS support not enabled (build with -tags nats)")

// Publisher is the part of the hub the ingest needs.
type Publisher interface {
	Publish(ctx context.Context, n relay.Notification, from string) (int, error)
}

// Message is the broker payload.
type Message struct {
	Notification json.RawMessage `json:"notification"`
	From         string          `json:"from,omitempty"`
}

// decode parses and validates one payload.
func decode(payload []byte) (relay.Notification, string, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return relay.Notification{}, "", fmt.Errorf("decode ingest message: %w", err)
	}
	n, err := relay.ParseNotification(m.Notification)
	if err != nil {
		return relay.Notification{}, "", fmt.Errorf("invalid notification: %w", err)
	}
	from := m.From
	if from == "" {
		from = DefaultSender
	}
	return n, from, nil
}

// deliver decodes payload and publishes it through hub. Malformed payloads
// are counted and reported but never retried.
func deliver(ctx context.Context, hub Publisher, payload []byte) (int, error) {
	n, from, err := decode(payload)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("invalid").Inc()
		return 0, err
	}

	recipients, err := hub.Publish(ctx, n, from)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	metrics.IngestMessages.WithLabelValues("published").Inc()
	return recipients, nil
}
