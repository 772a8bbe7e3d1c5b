// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package metrics declares the Prometheus instruments exported on /metrics.
//
// Instruments are registered with the default registry through promauto, so
// importing the package is enough to expose them. The relay hub updates the
// relay_* series from its own goroutine; the HTTP middleware updates http_*;
// the NATS bridge updates ingest_*.
//
// # Relay
//
//   - relay_connections_active (gauge)
//   - relay_connections_total (counter)
//   - relay_messages_received_total{type}
//   - relay_messages_sent_total{type}
//   - relay_errors_total{type}
//   - relay_evictions_total
//   - relay_pending_enqueued_total, relay_pending_dropped_total{reason}
//   - relay_channels (gauge)
//   - relay_broadcast_recipients (histogram)
//
// # HTTP
//
//   - http_requests_total{method,route,status_code}
//   - http_request_duration_seconds{method,route}
//   - http_active_requests
//
// # Ingest
//
//   - ingest_messages_total{result}
package metrics
