// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package ingest feeds server-side notifications from a NATS subject into the
// relay hub.
//
// Each message payload is a JSON object:
//
//	{"notification": {"id": "n1", "title": "...", "targetPortals": ["broker"]},
//	 "from": "billing-service"}
//
// The notification is validated exactly like a client broadcast and fanned out
// through Hub.Publish. "from" defaults to "nats". Core NATS is used with a queue
// group so several NotifyHub instances split one subject; JetStream is not used
// because relayed notifications are not durable.
//
// The broker transport is only compiled with the nats build tag. Without it,
// Start returns ErrNotEnabled.
package ingest
