// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

//go:build !nats

package ingest

import (
	"context"

	"github.com/tomtom215/notifyhub/internal/config"
)

// Available is set when the NATS transport is compiled in.
const Available = false

// Subscriber is a stub when NATS dependencies are not compiled in.
type Subscriber struct{}

// NewSubscriber returns a stub subscriber.
func NewSubscriber(cfg config.NATSConfig, hub Publisher) *Subscriber {
	return &Subscriber{}
}

// Start returns ErrNotEnabled.
func (s *Subscriber) Start(ctx context.Context) error {
	return ErrNotEnabled
}

// Shutdown is a no-op stub.
func (s *Subscriber) Shutdown(ctx context.Context) {}

// IsRunning always returns false.
func (s *Subscriber) IsRunning() bool {
	return false
}
