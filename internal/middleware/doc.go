// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package middleware holds net/http middleware shared by the HTTP routes.
//
//   - RequestID: propagates or assigns X-Request-ID and stores it in the
//     request context for logging.Ctx.
//   - PrometheusMetrics: records http_* series keyed by the chi route pattern.
//
// PrometheusMetrics wraps the ResponseWriter without exposing http.Hijacker,
// so it must not sit in front of the WebSocket upgrade route.
package middleware
