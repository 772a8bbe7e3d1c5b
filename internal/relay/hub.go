// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/notifyhub/internal/config"
	"github.com/tomtom215/notifyhub/internal/logging"
	"github.com/tomtom215/notifyhub/internal/metrics"
)

// ErrHubStopped is returned by hub calls made after shutdown.
var ErrHubStopped = errors.New("relay hub stopped")

// ShutdownReason explains why RunWithContext returned.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// closeReason explains why a single connection was torn down.
type closeReason string

const (
	reasonClientClosed   closeReason = "client_closed"
	reasonTransportError closeReason = "transport_error"
	reasonEvicted        closeReason = "evicted"
	reasonServerShutdown closeReason = "server_shutdown"
)

// ServerName is reported in system_status.
const ServerName = "notifyhub"

// Options tunes a Hub. Zero values fall back to the config defaults.
type Options struct {
	SweepInterval   time.Duration
	StaleWindow     time.Duration
	PendingLimit    int
	SendBuffer      int
	InboxSize       int
	MaxMessageBytes int64
	WriteWait       time.Duration
	InboundRate     float64
	InboundBurst    int
	Version         string

	// Now is the hub clock. Tests replace it to drive eviction.
	Now func() time.Time
}

// NewOptions maps relay configuration onto hub options.
func NewOptions(cfg config.RelayConfig, version string) Options {
	return Options{
		SweepInterval:   cfg.SweepInterval,
		StaleWindow:     cfg.StaleWindow,
		PendingLimit:    cfg.PendingLimit,
		SendBuffer:      cfg.SendBuffer,
		InboxSize:       cfg.InboxSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
		WriteWait:       cfg.WriteWait,
		InboundRate:     cfg.InboundRate,
		InboundBurst:    cfg.InboundBurst,
		Version:         version,
	}
}

func (o Options) withDefaults() Options {
	d := config.Default().Relay
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.StaleWindow <= 0 {
		o.StaleWindow = d.StaleWindow
	}
	if o.PendingLimit <= 0 {
		o.PendingLimit = d.PendingLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.InboxSize <= 0 {
		o.InboxSize = d.InboxSize
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = d.InboundBurst
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type serverStats struct {
	startTime        time.Time
	totalConnections int64
	messagesSent     int64
	messagesReceived int64
}

type inboundFrame struct {
	conn    *Connection
	data    []byte
	limited bool
}

type lifecycleEvent struct {
	conn   *Connection
	reason closeReason
}

type sweepRequest struct {
	reply chan SweepResult
}

type publishRequest struct {
	notification Notification
	from         string
	reply        chan int
}

// Hub owns the connection registry, channel router, pending queue and
// server stats. All of it is mutated only by the RunWithContext goroutine;
// everything else talks to the hub over channels.
type Hub struct {
	opts Options
	now  func() time.Time
	log  zerolog.Logger

	registry *registry
	router   *router
	pending  *pendingQueue
	stats    serverStats

	register   chan *Connection
	unregister chan lifecycleEvent
	inbox      chan inboundFrame
	pongs      chan *Connection
	sweeps     chan sweepRequest
	queries    chan chan Snapshot
	publishes  chan publishRequest

	done     chan struct{}
	doneOnce sync.Once

	last atomic.Pointer[Snapshot]
}

// NewHub creates a hub. Call RunWithContext to start it.
func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		opts:       opts,
		now:        opts.Now,
		log:        logging.WithComponent("relay-hub"),
		registry:   newRegistry(),
		router:     newRouter(),
		pending:    newPendingQueue(opts.PendingLimit),
		register:   make(chan *Connection),
		unregister: make(chan lifecycleEvent),
		inbox:      make(chan inboundFrame, opts.InboxSize),
		pongs:      make(chan *Connection, opts.InboxSize),
		sweeps:     make(chan sweepRequest),
		queries:    make(chan chan Snapshot),
		publishes:  make(chan publishRequest),
		done:       make(chan struct{}),
	}
	h.stats.startTime = h.now()
	h.last.Store(h.snapshot())
	return h
}

// Options returns the effective hub options.
func (h *Hub) Options() Options {
	return h.opts
}

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// RunWithContext runs the hub loop until ctx is canceled.
//
// Lifecycle events are drained before frames so a disconnect is never
// processed after frames that raced it. A panic escaping a handler is
// returned as an error; the registry survives, so a supervisor may simply
// call RunWithContext again.
func (h *Hub) RunWithContext(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RelayErrors.WithLabelValues("hub_panic").Inc()
			h.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("relay hub loop panicked")
			err = fmt.Errorf("relay hub panic: %v", r)
		}
	}()

	h.log.Info().
		Dur("sweep_interval", h.opts.SweepInterval).
		Dur("stale_window", h.opts.StaleWindow).
		Int("active_connections", h.registry.len()).
		Msg("relay hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.connect(c)
			continue
		case ev := <-h.unregister:
			h.disconnect(ev.conn, ev.reason)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case c := <-h.register:
			h.connect(c)

		case ev := <-h.unregister:
			h.disconnect(ev.conn, ev.reason)

		case f := <-h.inbox:
			if h.isLive(f.conn) {
				h.handleFrame(f.conn, f.data, f.limited)
			}

		case c := <-h.pongs:
			if h.isLive(c) {
				h.registry.touchPing(c.id, h.now())
			}

		case req := <-h.sweeps:
			req.reply <- h.sweep(h.now())

		case reply := <-h.queries:
			reply <- *h.snapshot()

		case req := <-h.publishes:
			req.reply <- h.fanOut(req.notification, req.from, "")
		}
	}
}

// Publish fans a server-originated notification out exactly like a client
// broadcast. from is reported to recipients; nobody is excluded.
func (h *Hub) Publish(ctx context.Context, n Notification, from string) (int, error) {
	req := publishRequest{notification: n, from: from, reply: make(chan int, 1)}
	select {
	case h.publishes <- req:
	case <-h.done:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case count := <-req.reply:
		return count, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Sweep runs one liveness pass.
func (h *Hub) Sweep(ctx context.Context) (SweepResult, error) {
	req := sweepRequest{reply: make(chan SweepResult, 1)}
	select {
	case h.sweeps <- req:
	case <-h.done:
		return SweepResult{}, ErrHubStopped
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	}
}

func (h *Hub) isLive(c *Connection) bool {
	cur, ok := h.registry.get(c.id)
	return ok && cur == c
}

// connect adds c to the registry and greets it with system_status.
func (h *Hub) connect(c *Connection) {
	now := h.now()
	h.registry.add(c, now)
	h.stats.totalConnections++
	metrics.RecordConnectionOpened()

	h.log.Info().
		Str("client_id", c.id).
		Str("remote_addr", c.remoteAddr).
		Int("active_connections", h.registry.len()).
		Msg("client connected")

	h.sendEnvelope(c.id, TypeSystemStatus, SystemStatus{
		header:              h.header(TypeSystemStatus),
		ClientID:            c.id,
		Server:              ServerName,
		Version:             h.opts.Version,
		Capabilities:        capabilities,
		HeartbeatIntervalMs: h.opts.SweepInterval.Milliseconds(),
		StaleWindowMs:       h.opts.StaleWindow.Milliseconds(),
	}, true)
}

// disconnect is the single teardown path. Calling it again for the same
// connection is a no-op.
func (h *Hub) disconnect(c *Connection, reason closeReason) {
	if !h.isLive(c) {
		c.shutdown(nil)
		return
	}

	h.registry.remove(c.id)
	channels := h.router.leaveAll(c.id)
	dropped := h.pending.discard(c.id)
	metrics.RecordConnectionClosed(reason == reasonEvicted)
	metrics.RelayChannels.Set(float64(h.router.len()))
	if dropped > 0 {
		metrics.RelayPendingDropped.WithLabelValues("teardown").Add(float64(dropped))
	}

	var frame []byte
	if reason == reasonServerShutdown {
		frame = websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	}
	c.shutdown(frame)

	if reason == reasonServerShutdown {
		return
	}
	h.log.Info().
		Str("client_id", c.id).
		Str("portal", c.portal).
		Str("reason", string(reason)).
		Int("channels_left", channels).
		Int("pending_dropped", dropped).
		Int("active_connections", h.registry.len()).
		Msg("client disconnected")
}

// shutdown closes every connection with 1001 and waits up to WriteWait for
// their writers to flush.
func (h *Hub) shutdown(ctx context.Context) {
	conns := h.sortedConnections()
	for _, c := range conns {
		h.disconnect(c, reasonServerShutdown)
	}

	timer := time.NewTimer(h.opts.WriteWait)
	defer timer.Stop()
	flushed := 0
wait:
	for _, c := range conns {
		select {
		case <-c.finished:
			flushed++
		case <-timer.C:
			break wait
		}
	}

	h.last.Store(h.snapshot())
	h.logGracefulShutdown(ctx, len(conns), flushed)
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *Hub) logGracefulShutdown(ctx context.Context, closed, flushed int) {
	h.log.Info().
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", closed).
		Int("clients_flushed", flushed).
		Msg("relay hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (h *Hub) header(msgType string) header {
	return header{Type: msgType, Timestamp: formatTimestamp(h.now())}
}

// sendEnvelope marshals v and delivers it to id.
func (h *Hub) sendEnvelope(id, msgType string, v interface{}, queue bool) bool {
	frame, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("failed to encode envelope")
		return false
	}
	return h.deliver(id, msgType, frame, queue)
}

func (h *Hub) sendError(id, text string) {
	h.sendEnvelope(id, TypeError, ErrorEnvelope{header: h.header(TypeError), Error: text}, true)
}

// deliver hands frame to id, flushing anything already pending for id
// first. When the target is unknown, closing or full the frame is parked
// (if queue is set) and false is returned.
func (h *Hub) deliver(id, msgType string, frame []byte, queue bool) bool {
	c, ok := h.registry.get(id)
	if ok && c.open.Load() && h.flushPending(c) && c.trySend(frame) {
		h.countSent(c, msgType)
		return true
	}
	if queue {
		h.park(id, msgType, frame)
	}
	return false
}

func (h *Hub) flushPending(c *Connection) bool {
	list := h.pending.take(c.id)
	for i, e := range list {
		if !c.trySend(e.frame) {
			h.pending.putBack(c.id, list[i:])
			return false
		}
		h.countSent(c, e.msgType)
	}
	return true
}

func (h *Hub) park(id, msgType string, frame []byte) {
	dropped := h.pending.enqueue(id, pendingEntry{frame: frame, msgType: msgType, enqueuedAt: h.now()})
	metrics.RelayPendingEnqueued.Inc()
	if dropped > 0 {
		metrics.RelayPendingDropped.WithLabelValues("overflow").Add(float64(dropped))
		h.log.Debug().Str("client_id", id).Int("dropped", dropped).Msg("pending queue full, dropped oldest")
	}
}

func (h *Hub) countSent(c *Connection, msgType string) {
	c.messagesSent++
	h.stats.messagesSent++
	metrics.RelayMessagesSent.WithLabelValues(msgType).Inc()
}

// fanOut resolves the notification's audience and sends it to everyone but
// exclude. It returns how many connections actually accepted the frame.
func (h *Hub) fanOut(n Notification, from, exclude string) int {
	frame, err := json.Marshal(NotificationEnvelope{
		header:       h.header(TypeNotification),
		Notification: n,
		From:         from,
	})
	if err != nil {
		h.log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to encode notification")
		return 0
	}

	targets := h.router.resolveTargets(n.TargetPortals, h.registry.ids)
	recipients := 0
	for _, id := range targets {
		if id == exclude {
			continue
		}
		if h.deliver(id, TypeNotification, frame, true) {
			recipients++
		}
	}
	metrics.RecordBroadcast(recipients)
	return recipients
}

// sortedConnections returns live connections ordered by id.
func (h *Hub) sortedConnections() []*Connection {
	ids := h.registry.ids()
	out := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		c, _ := h.registry.get(id)
		out = append(out, c)
	}
	return out
}
