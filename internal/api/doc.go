// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package api serves the NotifyHub HTTP surface on a chi router.
//
// Routes:
//
//	GET  /notifications   WebSocket upgrade into the relay hub
//	GET  /health          uptime, connection and message counters, channel sizes
//	GET  /stats           /health plus a per-connection listing
//	GET  /metrics         Prometheus exposition (when enabled)
//	OPTIONS *             200 with an empty body (CORS preflight)
//	*                     404 text/plain usage hint
//
// Middleware order is request id, real IP, panic recovery, CORS for the single
// configured origin, then the OPTIONS responder. /health and /stats are also
// rate limited per client IP and instrumented; the upgrade route is not,
// because instrumentation wraps the ResponseWriter and would hide Hijacker.
//
// The observability handlers read hub snapshots only. When the hub loop does
// not answer quickly a cached snapshot is served, so /health always returns 200.
package api
