// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Connection is one live relay socket.
//
// The socket is only ever written by writePump. Everything else hands frames
// to send and never blocks on it. Fields below the marker are owned by the
// hub goroutine.
type Connection struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string

	send     chan []byte
	ping     chan struct{}
	done     chan struct{}
	finished chan struct{}

	closeOnce  sync.Once
	closeFrame []byte
	open       atomic.Bool

	limiter *rate.Limiter

	// hub-owned
	connectedAt      time.Time
	lastPing         time.Time
	portal           string
	service          string
	userID           string
	registered       bool
	messagesSent     int64
	messagesReceived int64
}

func newConnection(conn *websocket.Conn, remoteAddr string, opts Options) *Connection {
	c := &Connection{
		id:         uuid.New().String(),
		conn:       conn,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, opts.SendBuffer),
		ping:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	if opts.InboundRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.InboundRate), opts.InboundBurst)
	}
	c.open.Store(true)
	return c
}

// ID returns the server-assigned connection id.
func (c *Connection) ID() string {
	return c.id
}

// trySend queues frame without blocking. It fails when the connection is
// closing or its buffer is full.
func (c *Connection) trySend(frame []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// requestPing asks writePump for a transport ping. A ping already waiting
// is enough.
func (c *Connection) requestPing() bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return true
}

// allow applies the inbound rate limit.
func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// shutdown stops the connection. closeFrame, when set, is written as the
// final control frame; nil terminates the socket without one.
func (c *Connection) shutdown(closeFrame []byte) {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.closeFrame = closeFrame
		close(c.done)
		if c.conn == nil {
			close(c.finished)
		}
	})
}

func (c *Connection) info() ClientInfo {
	return ClientInfo{
		ID:               c.id,
		Portal:           c.portal,
		Service:          c.service,
		UserID:           c.userID,
		Registered:       c.registered,
		Connected:        c.open.Load(),
		RemoteAddr:       c.remoteAddr,
		ConnectedAt:      c.connectedAt,
		LastPing:         c.lastPing,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
	}
}
