// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/notifyhub/internal/config"
	"github.com/tomtom215/notifyhub/internal/middleware"
	"github.com/tomtom215/notifyhub/internal/relay"
)

// WebSocketPath is the single relay upgrade path.
const WebSocketPath = "/notifications"

// Relay is the part of the hub the HTTP layer needs.
type Relay interface {
	Attach(ctx context.Context, conn *websocket.Conn, remoteAddr string) (*relay.Connection, error)
	Snapshot(ctx context.Context) relay.Snapshot
}

// Router wires HTTP routes to the relay hub.
type Router struct {
	hub             Relay
	cfg             *config.Config
	chiMiddleware   *ChiMiddleware
	upgrader        websocket.Upgrader
	snapshotTimeout time.Duration
}

// NewRouter creates a router for hub using cfg.
func NewRouter(cfg *config.Config, hub Relay) *Router {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSOrigin:         cfg.Server.CORSOrigin,
		CORSAllowedMethods: []string{http.MethodGet, http.MethodOptions},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.HTTP.RateLimitRequests,
		RateLimitWindow:    time.Minute,
	})

	return &Router{
		hub:             hub,
		cfg:             cfg,
		chiMiddleware:   mw,
		upgrader:        newUpgrader(),
		snapshotTimeout: 500 * time.Millisecond,
	}
}

// Handler builds the chi route tree.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(Preflight)
	r.Use(AccessLog)

	r.Get(WebSocketPath, router.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.chiMiddleware.RateLimit())
		r.Get("/health", router.Health)
		r.Get("/stats", router.Stats)
	})

	if router.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, router.cfg.Metrics.Path, promhttp.Handler())
	}

	r.NotFound(router.NotFound)
	r.MethodNotAllowed(router.NotFound)

	return r
}

// NewHTTPServer wraps handler with the configured server timeouts.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}
