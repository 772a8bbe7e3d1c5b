// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"sort"
	"time"
)

// registry is the canonical table of live connections. Only the hub
// goroutine touches it.
type registry struct {
	conns map[string]*Connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*Connection)}
}

func (r *registry) add(c *Connection, now time.Time) {
	c.connectedAt = now
	c.lastPing = now
	r.conns[c.id] = c
}

func (r *registry) get(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// updateIdentity is a no-op for ids that already disconnected.
func (r *registry) updateIdentity(id, portal, service, userID string) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.portal = portal
	c.service = service
	c.userID = userID
	c.registered = true
	return true
}

// remove reports whether id was present; a second call is a no-op.
func (r *registry) remove(id string) bool {
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *registry) touchPing(id string, now time.Time) {
	if c, ok := r.conns[id]; ok {
		c.lastPing = now
	}
}

func (r *registry) len() int {
	return len(r.conns)
}

// ids returns every live connection id in sorted order.
func (r *registry) ids() []string {
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// snapshot lists every connection, sorted by connect time then id.
func (r *registry) snapshot() []ClientInfo {
	out := make([]ClientInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
