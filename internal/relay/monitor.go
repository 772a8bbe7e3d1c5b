// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/notifyhub/internal/logging"
	"github.com/tomtom215/notifyhub/internal/metrics"
)

// SweepResult summarises one liveness pass.
type SweepResult struct {
	Pinged        int
	Evicted       []string
	PendingPruned int
}

// sweep evicts connections whose last pong is older than the stale window
// and asks the rest for a transport ping. It also retries parked frames for
// live connections and prunes expired frames for vanished ids.
func (h *Hub) sweep(now time.Time) SweepResult {
	var res SweepResult
	for _, c := range h.sortedConnections() {
		silent := now.Sub(c.lastPing)
		if silent > h.opts.StaleWindow {
			h.log.Info().
				Str("client_id", c.id).
				Str("portal", c.portal).
				Dur("silent_for", silent).
				Msg("evicting stale connection")
			h.disconnect(c, reasonEvicted)
			res.Evicted = append(res.Evicted, c.id)
			continue
		}
		h.flushPending(c)
		if c.requestPing() {
			res.Pinged++
		}
	}

	res.PendingPruned = h.pending.prune(now, h.opts.StaleWindow, func(id string) bool {
		_, ok := h.registry.get(id)
		return ok
	})
	if res.PendingPruned > 0 {
		metrics.RelayPendingDropped.WithLabelValues("expired").Add(float64(res.PendingPruned))
	}

	h.last.Store(h.snapshot())
	return res
}

// Monitor drives the hub's liveness sweep on a fixed interval. One global
// ticker serves every connection.
type Monitor struct {
	hub      *Hub
	interval time.Duration
	log      zerolog.Logger
}

// NewMonitor creates a monitor that sweeps hub every SweepInterval.
func NewMonitor(hub *Hub) *Monitor {
	return &Monitor{
		hub:      hub,
		interval: hub.Options().SweepInterval,
		log:      logging.WithComponent("liveness-monitor"),
	}
}

// RunWithContext ticks until ctx is canceled or the hub stops.
func (m *Monitor) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.hub.Done():
			return nil
		case <-ticker.C:
			res, err := m.hub.Sweep(ctx)
			if err != nil {
				if errors.Is(err, ErrHubStopped) {
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			m.log.Debug().
				Int("pinged", res.Pinged).
				Int("evicted", len(res.Evicted)).
				Int("pending_pruned", res.PendingPruned).
				Msg("liveness sweep complete")
		}
	}
}
