// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package services

import (
	"context"
	"fmt"
	"time"
)

// IngestRunner matches *ingest.Subscriber.
type IngestRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// IngestService supervises the broker subscriber that feeds server-side
// notifications into the hub.
type IngestService struct {
	runner          IngestRunner
	shutdownTimeout time.Duration
	name            string
}

// NewIngestService wraps runner with a 10s shutdown timeout.
func NewIngestService(runner IngestRunner) *IngestService {
	return NewIngestServiceWithTimeout(runner, 10*time.Second)
}

// NewIngestServiceWithTimeout wraps runner with a custom shutdown timeout.
func NewIngestServiceWithTimeout(runner IngestRunner, shutdownTimeout time.Duration) *IngestService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &IngestService{
		runner:          runner,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-ingest",
	}
}

// Serve implements suture.Service. A Start error is returned so suture
// retries with backoff while the broker is unreachable.
func (s *IngestService) Serve(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		return fmt.Errorf("ingest start failed: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.runner.Shutdown(shutdownCtx)

	return ctx.Err()
}

func (s *IngestService) String() string {
	return s.name
}
