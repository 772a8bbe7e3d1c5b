// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"bytes"
	"errors"
	"runtime/debug"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/notifyhub/internal/metrics"
	"github.com/tomtom215/notifyhub/internal/validation"
)

// handleFrame decodes one inbound frame from c and runs its handler.
// Nothing raised here escapes: a panic becomes a logged error plus an error
// envelope to the sender.
func (h *Hub) handleFrame(c *Connection, data []byte, limited bool) {
	c.messagesReceived++
	h.stats.messagesReceived++

	defer func() {
		if r := recover(); r != nil {
			metrics.RelayErrors.WithLabelValues("handler_panic").Inc()
			h.log.Error().
				Str("client_id", c.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("relay handler panicked")
			h.sendError(c.id, errTextInternal)
		}
	}()

	if limited {
		metrics.RelayMessagesReceived.WithLabelValues("rate_limited").Inc()
		metrics.RelayErrors.WithLabelValues("rate_limited").Inc()
		h.sendError(c.id, errTextRateLimited)
		return
	}

	req, err := DecodeRequest(data)
	if err != nil {
		h.rejectFrame(c, err)
		return
	}
	metrics.RelayMessagesReceived.WithLabelValues(req.requestType()).Inc()

	switch r := req.(type) {
	case RegisterRequest:
		h.handleRegister(c, r)
	case BroadcastRequest:
		h.handleBroadcast(c, r)
	case JoinChannelRequest:
		h.handleJoin(c, r)
	case LeaveChannelRequest:
		h.handleLeave(c, r)
	case DirectMessageRequest:
		h.handleDirect(c, r)
	case PingRequest:
		h.sendEnvelope(c.id, TypePong, Pong{header: h.header(TypePong)}, true)
	}
}

func (h *Hub) rejectFrame(c *Connection, err error) {
	var unknown *UnknownTypeError
	switch {
	case errors.As(err, &unknown):
		metrics.RelayMessagesReceived.WithLabelValues("unknown").Inc()
		metrics.RelayErrors.WithLabelValues("unknown_type").Inc()
		h.log.Warn().Str("client_id", c.id).Str("type", unknown.Type).Msg("unknown message type")
		h.sendError(c.id, unknown.Error())
	case errors.Is(err, errMissingType):
		metrics.RelayMessagesReceived.WithLabelValues("invalid").Inc()
		metrics.RelayErrors.WithLabelValues("missing_type").Inc()
		h.log.Warn().Str("client_id", c.id).Msg("message without type")
		h.sendError(c.id, errTextMissingType)
	default:
		metrics.RelayMessagesReceived.WithLabelValues("invalid").Inc()
		metrics.RelayErrors.WithLabelValues("invalid_json").Inc()
		h.log.Warn().Err(err).Str("client_id", c.id).Msg("invalid message")
		h.sendError(c.id, errTextInvalidFormat)
	}
}

// handleRegister sets the connection identity and moves it into its portal
// channel. A missing portal registers as "unknown".
func (h *Hub) handleRegister(c *Connection, r RegisterRequest) {
	portal := strings.TrimSpace(r.Portal)
	if portal == "" {
		portal = UnknownPortal
	}

	previous, wasRegistered := c.portal, c.registered
	h.registry.updateIdentity(c.id, portal, r.Service, r.UserID)
	if wasRegistered && previous != portal {
		h.router.leave(PortalChannel(previous), c.id)
	}
	channel := PortalChannel(portal)
	h.router.join(channel, c.id)
	metrics.RelayChannels.Set(float64(h.router.len()))

	h.log.Info().
		Str("client_id", c.id).
		Str("portal", portal).
		Str("service", r.Service).
		Str("user_id", r.UserID).
		Msg("client registered")

	h.sendEnvelope(c.id, TypeRegistrationConfirmed, RegistrationConfirmed{
		header:            h.header(TypeRegistrationConfirmed),
		ClientID:          c.id,
		Portal:            portal,
		Channel:           channel,
		ActiveConnections: h.registry.len(),
		Service:           r.Service,
		UserID:            r.UserID,
	}, true)
}

// handleBroadcast drops malformed notifications silently (logged only) and
// otherwise fans out, excluding the sender.
func (h *Hub) handleBroadcast(c *Connection, r BroadcastRequest) {
	n, reason := parseNotification(r.Notification)
	if reason != "" {
		metrics.RelayErrors.WithLabelValues("malformed_broadcast").Inc()
		h.log.Warn().
			Str("client_id", c.id).
			Str("reason", reason).
			Msg("dropping malformed broadcast")
		return
	}

	recipients := h.fanOut(n, c.id, c.id)

	h.log.Debug().
		Str("client_id", c.id).
		Str("notification_id", n.ID).
		Strs("target_portals", n.TargetPortals).
		Int("recipients", recipients).
		Msg("broadcast relayed")

	targets := n.TargetPortals
	if targets == nil {
		targets = []string{}
	}
	h.sendEnvelope(c.id, TypeBroadcastConfirmed, BroadcastConfirmed{
		header:         h.header(TypeBroadcastConfirmed),
		NotificationID: n.ID,
		RecipientCount: recipients,
		TargetPortals:  targets,
	}, true)
}

// ParseNotification decodes and validates a notification received outside a
// WebSocket frame, such as from the broker ingest.
func ParseNotification(raw json.RawMessage) (Notification, error) {
	n, reason := parseNotification(raw)
	if reason != "" {
		return Notification{}, errors.New(reason)
	}
	return n, nil
}

// parseNotification returns a non-empty reason when raw is unusable.
func parseNotification(raw json.RawMessage) (Notification, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Notification{}, "missing notification"
	}
	var n Notification
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return Notification{}, "notification is not a valid object"
	}
	if verr := validation.ValidateStruct(&n); verr != nil {
		return Notification{}, verr.Error()
	}
	return n, ""
}

// handleJoin always confirms, even when the name is empty and nothing joins.
func (h *Hub) handleJoin(c *Connection, r JoinChannelRequest) {
	h.router.join(r.Channel, c.id)
	metrics.RelayChannels.Set(float64(h.router.len()))
	h.sendEnvelope(c.id, TypeChannelJoined, ChannelEvent{header: h.header(TypeChannelJoined), Channel: r.Channel}, true)
}

func (h *Hub) handleLeave(c *Connection, r LeaveChannelRequest) {
	h.router.leave(r.Channel, c.id)
	metrics.RelayChannels.Set(float64(h.router.len()))
	h.sendEnvelope(c.id, TypeChannelLeft, ChannelEvent{header: h.header(TypeChannelLeft), Channel: r.Channel}, true)
}

// handleDirect delivers to exactly one live connection. Direct messages are
// never parked for later.
func (h *Hub) handleDirect(c *Connection, r DirectMessageRequest) {
	target, ok := h.registry.get(r.TargetClientID)
	if r.TargetClientID == "" || !ok || !target.open.Load() {
		metrics.RelayErrors.WithLabelValues("target_offline").Inc()
		h.sendError(c.id, errTextTargetOffline)
		return
	}

	delivered := h.sendEnvelope(target.id, TypeDirectMessage, DirectMessage{
		header: h.header(TypeDirectMessage),
		From:   c.id,
		Data:   r.Data,
	}, false)
	if !delivered {
		metrics.RelayErrors.WithLabelValues("target_offline").Inc()
		h.sendError(c.id, errTextTargetOffline)
		return
	}

	h.sendEnvelope(c.id, TypeMessageDelivered, MessageDelivered{
		header:         h.header(TypeMessageDelivered),
		TargetClientID: target.id,
	}, true)
}
