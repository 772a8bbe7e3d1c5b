// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

/*
Package supervisor runs NotifyHub's long-lived services under suture v4.

The tree isolates failures by layer:

	RootSupervisor ("notifyhub")
	├── RelaySupervisor ("relay-layer")
	│   ├── RelayHubService
	│   └── LivenessMonitorService
	├── IngestSupervisor ("ingest-layer")
	│   └── IngestService (if NATS_ENABLED, build tag: nats)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A broker outage restarts only the ingest layer; WebSocket clients stay
connected. A panic in the hub loop is returned as an error and the hub is
restarted with its registry intact.

Supervisor events (restarts, backoff, timeouts) are logged through
sutureslog into the zerolog-backed slog handler from internal/logging.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	tree.AddRelayService(services.NewRelayHubService(hub))
	tree.AddRelayService(services.NewLivenessMonitorService(monitor))
	tree.AddAPIService(services.NewHTTPServerService(server, listener, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
