// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

/*
Package services adapts NotifyHub components to suture.Service.

Each wrapper translates one lifecycle shape into Serve(ctx) error:

  - RelayHubService and LivenessMonitorService delegate to RunWithContext.
  - HTTPServerService serves on a pre-bound listener and calls Shutdown with
    a fresh timeout context when ctx is canceled.
  - IngestService calls Start, waits for ctx, then Shutdown.

Every wrapper implements fmt.Stringer so supervisor events name the service.
*/
package services
