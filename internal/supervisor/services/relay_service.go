// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// ContextRunner matches *relay.Hub and *relay.Monitor.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RelayHubService supervises the relay hub loop. The hub returns a panic
// as an error and keeps its registry, so a restart resumes routing for
// every open connection.
type RelayHubService struct {
	hub  ContextRunner
	name string
}

// NewRelayHubService wraps hub.
func NewRelayHubService(hub ContextRunner) *RelayHubService {
	return &RelayHubService{hub: hub, name: "relay-hub"}
}

// Serve implements suture.Service.
func (s *RelayHubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *RelayHubService) String() string {
	return s.name
}

// LivenessMonitorService supervises the periodic liveness sweep.
type LivenessMonitorService struct {
	monitor ContextRunner
	name    string
}

// NewLivenessMonitorService wraps monitor.
func NewLivenessMonitorService(monitor ContextRunner) *LivenessMonitorService {
	return &LivenessMonitorService{monitor: monitor, name: "liveness-monitor"}
}

// Serve implements suture.Service. The monitor returns nil once the hub has
// stopped; suture.ErrDoNotRestart keeps it from spinning in that case.
func (s *LivenessMonitorService) Serve(ctx context.Context) error {
	err := s.monitor.RunWithContext(ctx)
	if err == nil && ctx.Err() == nil {
		return suture.ErrDoNotRestart
	}
	return err
}

func (s *LivenessMonitorService) String() string {
	return s.name
}
