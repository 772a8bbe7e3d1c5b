// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/notifyhub/internal/metrics"
)

// Attach registers an upgraded socket with the hub and starts its pumps.
// system_status is queued before any inbound frame can be read.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn, remoteAddr string) (*Connection, error) {
	c := newConnection(conn, remoteAddr, h.opts)

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil, ErrHubStopped
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}

	go h.writePump(c)
	go h.readPump(c)
	return c, nil
}

// touch reports a transport pong for c.
func (h *Hub) touch(c *Connection) {
	select {
	case h.pongs <- c:
	case <-c.done:
	case <-h.done:
	}
}

// release asks the hub to tear c down.
func (h *Hub) release(c *Connection, reason closeReason) {
	select {
	case h.unregister <- lifecycleEvent{conn: c, reason: reason}:
	case <-h.done:
	}
}

// readPump forwards frames to the hub in arrival order. There is no read
// deadline; silent peers are handled by the liveness sweep.
func (h *Hub) readPump(c *Connection) {
	reason := reasonClientClosed
	defer func() {
		h.release(c, reason)
	}()

	c.conn.SetReadLimit(h.opts.MaxMessageBytes)
	c.conn.SetPongHandler(func(string) error {
		h.touch(c)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				metrics.RelayErrors.WithLabelValues("transport").Inc()
				h.log.Warn().Err(err).Str("client_id", c.id).Msg("unexpected websocket close error")
				reason = reasonTransportError
			}
			return
		}

		frame := inboundFrame{conn: c, data: data, limited: !c.allow()}
		select {
		case h.inbox <- frame:
		case <-c.done:
			return
		case <-h.done:
			return
		}
	}
}

// writePump is the only writer of c.conn. On shutdown with a close frame it
// flushes what is buffered first; an eviction closes the socket at once.
func (h *Hub) writePump(c *Connection) {
	defer func() {
		_ = c.conn.Close() // best-effort
		close(c.finished)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := h.write(c, frame); err != nil {
				h.log.Debug().Err(err).Str("client_id", c.id).Msg("websocket write failed")
				return
			}

		case <-c.ping:
			deadline := time.Now().Add(h.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.log.Debug().Err(err).Str("client_id", c.id).Msg("websocket ping failed")
				return
			}

		case <-c.done:
			if c.closeFrame == nil {
				return
			}
			h.drain(c)
			deadline := time.Now().Add(h.opts.WriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeFrame, deadline)
			return
		}
	}
}

func (h *Hub) write(c *Connection, frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// drain writes frames still buffered in c.send.
func (h *Hub) drain(c *Connection) {
	for {
		select {
		case frame := <-c.send:
			if err := h.write(c, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
