// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"context"
	"time"
)

// ClientInfo describes one connection in a Snapshot.
type ClientInfo struct {
	ID               string    `json:"id"`
	Portal           string    `json:"portal,omitempty"`
	Service          string    `json:"service,omitempty"`
	UserID           string    `json:"userId,omitempty"`
	Registered       bool      `json:"registered"`
	Connected        bool      `json:"connected"`
	RemoteAddr       string    `json:"remoteAddr,omitempty"`
	ConnectedAt      time.Time `json:"connectedAt"`
	LastPing         time.Time `json:"lastPing"`
	MessagesSent     int64     `json:"messagesSent"`
	MessagesReceived int64     `json:"messagesReceived"`
}

// Snapshot is an immutable copy of hub state for the observability routes.
type Snapshot struct {
	StartTime         time.Time
	TakenAt           time.Time
	ActiveConnections int
	TotalConnections  int64
	MessagesSent      int64
	MessagesReceived  int64
	Channels          map[string]int
	Clients           []ClientInfo
	PendingTargets    int
	PendingFrames     int

	// Stale is set when the hub did not answer and a cached copy was used.
	Stale bool
}

// Uptime is the time between start and when the snapshot was taken.
func (s Snapshot) Uptime() time.Duration {
	return s.TakenAt.Sub(s.StartTime)
}

func (h *Hub) snapshot() *Snapshot {
	pendingIDs, pendingFrames := h.pending.total()
	return &Snapshot{
		StartTime:         h.stats.startTime,
		TakenAt:           h.now(),
		ActiveConnections: h.registry.len(),
		TotalConnections:  h.stats.totalConnections,
		MessagesSent:      h.stats.messagesSent,
		MessagesReceived:  h.stats.messagesReceived,
		Channels:          h.router.counts(),
		Clients:           h.registry.snapshot(),
		PendingTargets:    pendingIDs,
		PendingFrames:     pendingFrames,
	}
}

// Snapshot asks the hub loop for current state. If the loop does not answer
// before ctx is done (or has stopped) the most recent cached snapshot is
// returned with Stale set, so callers always get an answer.
func (h *Hub) Snapshot(ctx context.Context) Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case h.queries <- reply:
		select {
		case s := <-reply:
			h.last.Store(&s)
			return s
		case <-ctx.Done():
		}
	case <-h.done:
	case <-ctx.Done():
	}
	return h.cached()
}

func (h *Hub) cached() Snapshot {
	s := *h.last.Load()
	s.Stale = true
	s.TakenAt = h.now()
	return s
}
