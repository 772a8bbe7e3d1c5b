// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/notifyhub/internal/logging"
	"github.com/tomtom215/notifyhub/internal/relay"
)

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// No authentication exists; any origin may connect.
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		HandshakeTimeout: 10 * time.Second,
	}
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status            string         `json:"status"`
	Uptime            float64        `json:"uptime"`
	ActiveConnections int            `json:"activeConnections"`
	TotalConnections  int64          `json:"totalConnections"`
	MessagesSent      int64          `json:"messagesSent"`
	MessagesReceived  int64          `json:"messagesReceived"`
	Channels          map[string]int `json:"channels"`
	PendingTargets    int            `json:"pendingTargets"`
	PendingMessages   int            `json:"pendingMessages"`
	Timestamp         string         `json:"timestamp"`
}

// ClientView is one entry in the /stats client listing.
type ClientView struct {
	ID               string  `json:"id"`
	Portal           *string `json:"portal"`
	Service          *string `json:"service"`
	UserID           *string `json:"userId"`
	Connected        bool    `json:"connected"`
	RemoteAddr       string  `json:"remoteAddr,omitempty"`
	ConnectedAt      string  `json:"connectedAt"`
	LastPing         string  `json:"lastPing"`
	MessagesSent     int64   `json:"messagesSent"`
	MessagesReceived int64   `json:"messagesReceived"`
}

// StatsResponse is the /stats body.
type StatsResponse struct {
	HealthResponse
	Clients []ClientView `json:"clients"`
}

// ServeWS upgrades the request and hands the socket to the hub.
func (router *Router) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := router.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c, err := router.hub.Attach(r.Context(), conn, r.RemoteAddr)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("relay rejected connection")
		return
	}
	logging.Ctx(r.Context()).Debug().Str("client_id", c.ID()).Msg("websocket attached")
}

// Health reports liveness and aggregate counters.
func (router *Router) Health(w http.ResponseWriter, r *http.Request) {
	snap := router.snapshot(r.Context())
	respondJSON(w, http.StatusOK, healthFromSnapshot(snap))
}

// Stats reports the /health fields plus every connection.
func (router *Router) Stats(w http.ResponseWriter, r *http.Request) {
	snap := router.snapshot(r.Context())

	clients := make([]ClientView, 0, len(snap.Clients))
	for i := range snap.Clients {
		clients = append(clients, clientView(&snap.Clients[i]))
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		HealthResponse: healthFromSnapshot(snap),
		Clients:        clients,
	})
}

// NotFound answers unknown routes with a usage hint.
func (router *Router) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "Not found. Connect a WebSocket to %s; see /health and /stats.\n", WebSocketPath)
}

func (router *Router) snapshot(ctx context.Context) relay.Snapshot {
	ctx, cancel := context.WithTimeout(ctx, router.snapshotTimeout)
	defer cancel()
	return router.hub.Snapshot(ctx)
}

func healthFromSnapshot(snap relay.Snapshot) HealthResponse {
	channels := snap.Channels
	if channels == nil {
		channels = map[string]int{}
	}
	return HealthResponse{
		Status:            "healthy",
		Uptime:            snap.Uptime().Seconds(),
		ActiveConnections: snap.ActiveConnections,
		TotalConnections:  snap.TotalConnections,
		MessagesSent:      snap.MessagesSent,
		MessagesReceived:  snap.MessagesReceived,
		Channels:          channels,
		PendingTargets:    snap.PendingTargets,
		PendingMessages:   snap.PendingFrames,
		Timestamp:         snap.TakenAt.UTC().Format(relay.TimestampFormat),
	}
}

func clientView(info *relay.ClientInfo) ClientView {
	return ClientView{
		ID:               info.ID,
		Portal:           optional(info.Portal),
		Service:          optional(info.Service),
		UserID:           optional(info.UserID),
		Connected:        info.Connected,
		RemoteAddr:       info.RemoteAddr,
		ConnectedAt:      info.ConnectedAt.UTC().Format(relay.TimestampFormat),
		LastPing:         info.LastPing.UTC().Format(relay.TimestampFormat),
		MessagesSent:     info.MessagesSent,
		MessagesReceived: info.MessagesReceived,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// respondJSON writes data as JSON with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
