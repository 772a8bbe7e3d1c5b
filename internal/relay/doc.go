// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

/*
Package relay implements the real-time notification hub.

Portals (driver app, broker portal, dispatch dashboard, admin console, ...)
connect over WebSocket, register a portal identity and exchange JSON
envelopes. The hub routes broadcasts by portal channel, relays direct
messages between connections and keeps every socket honest with a periodic
transport-level ping.

Architecture:

	          ┌───────────── Hub goroutine ─────────────┐
	 readPump │  registry   router   pendingQueue  stats │ writePump
	 ───────▶ │      ▲         ▲          ▲              │ ───────▶
	  inbox   │      └──── dispatch (handleFrame) ───────│  send chan
	          └──────────────────────────────────────────┘
	                 ▲                        ▲
	              Monitor                Snapshot / Publish
	         (sweep every 2m)        (HTTP routes, NATS ingest)

All shared state is owned by the single goroutine running RunWithContext.
Socket goroutines and callers talk to it only over channels, so no locks
guard the maps. Each connection has one reader and one writer goroutine;
the hub never blocks on a socket because it only performs non-blocking
sends into a buffered per-connection channel.

Delivery is best effort. A frame for a connection that is unknown, closing
or whose buffer is full is parked in a bounded per-connection pending queue
and flushed ahead of the next successful send. Parked frames are discarded
on teardown and expire after the stale window. Direct messages are never
parked.

Inbound envelopes:

  - register {portal, userId?, service?}
  - broadcast_notification {notification: {id, title, targetPortals?, ...}}
  - join_channel {channel} / leave_channel {channel}
  - direct_message {targetClientId, data}
  - ping {}

Outbound envelopes: system_status, registration_confirmed, notification,
broadcast_confirmed, channel_joined, channel_left, message_delivered,
direct_message, pong and error. Every envelope carries "type" and an
ISO-8601 "timestamp".

Usage:

	hub := relay.NewHub(relay.NewOptions(cfg.Relay, version))
	go hub.RunWithContext(ctx)
	go relay.NewMonitor(hub).RunWithContext(ctx)

	conn, _ := upgrader.Upgrade(w, r, nil)
	hub.Attach(r.Context(), conn, r.RemoteAddr)
*/
package relay
