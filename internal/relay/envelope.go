// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Inbound envelope types.
const (
	TypeRegister              = "register"
	TypeBroadcastNotification = "broadcast_notification"
	TypeJoinChannel           = "join_channel"
	TypeLeaveChannel          = "leave_channel"
	TypeDirectMessage         = "direct_message"
	TypePing                  = "ping"
)

// Outbound envelope types. direct_message is used in both directions.
const (
	TypeSystemStatus          = "system_status"
	TypeRegistrationConfirmed = "registration_confirmed"
	TypeNotification          = "notification"
	TypeBroadcastConfirmed    = "broadcast_confirmed"
	TypeChannelJoined         = "channel_joined"
	TypeChannelLeft           = "channel_left"
	TypeMessageDelivered      = "message_delivered"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// TimestampFormat is the ISO-8601 layout used on every envelope.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// PortalChannelPrefix prefixes the channel every registered portal joins.
const PortalChannelPrefix = "portal:"

// UnknownPortal is assigned when register omits the portal field.
const UnknownPortal = "unknown"

// Error strings sent back to clients.
const (
	errTextInvalidFormat = "invalid message format"
	errTextMissingType   = "missing message type"
	errTextTargetOffline = "target not found or offline"
	errTextRateLimited   = "rate limit exceeded"
	errTextInternal      = "internal error processing message"
)

var (
	errInvalidJSON = errors.New(errTextInvalidFormat)
	errMissingType = errors.New(errTextMissingType)
)

// UnknownTypeError reports an envelope whose type is not recognised.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return "unknown message type: " + e.Type
}

// PortalChannel returns the channel name for portal.
func PortalChannel(portal string) string {
	return PortalChannelPrefix + portal
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Notification is the payload of broadcast_notification. Only ID, Title and
// TargetPortals are interpreted; every other field the sender supplied is
// relayed untouched.
type Notification struct {
	ID            string   `json:"id" validate:"required"`
	Title         string   `json:"title" validate:"required"`
	TargetPortals []string `json:"targetPortals,omitempty"`

	raw json.RawMessage
}

type notificationAlias Notification

// UnmarshalJSON keeps the original bytes so unknown fields survive relaying.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var alias notificationAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*n = Notification(alias)
	n.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original bytes when the value was decoded from JSON.
func (n Notification) MarshalJSON() ([]byte, error) {
	if len(n.raw) > 0 {
		return n.raw, nil
	}
	return json.Marshal(notificationAlias(n))
}

// Request is one decoded inbound envelope.
type Request interface {
	requestType() string
}

// RegisterRequest announces the connection's portal identity.
type RegisterRequest struct {
	Portal  string `json:"portal"`
	UserID  string `json:"userId,omitempty"`
	Service string `json:"service,omitempty"`
}

// BroadcastRequest carries a notification for fan-out. Notification is kept
// raw so a malformed payload can be dropped rather than answered.
type BroadcastRequest struct {
	Notification json.RawMessage `json:"notification"`
}

// JoinChannelRequest adds the sender to a channel.
type JoinChannelRequest struct {
	Channel string `json:"channel"`
}

// LeaveChannelRequest removes the sender from a channel.
type LeaveChannelRequest struct {
	Channel string `json:"channel"`
}

// DirectMessageRequest targets exactly one connection.
type DirectMessageRequest struct {
	TargetClientID string          `json:"targetClientId"`
	Data           json.RawMessage `json:"data"`
}

// PingRequest is the application-level ping.
type PingRequest struct{}

func (RegisterRequest) requestType() string      { return TypeRegister }
func (BroadcastRequest) requestType() string     { return TypeBroadcastNotification }
func (JoinChannelRequest) requestType() string   { return TypeJoinChannel }
func (LeaveChannelRequest) requestType() string  { return TypeLeaveChannel }
func (DirectMessageRequest) requestType() string { return TypeDirectMessage }
func (PingRequest) requestType() string          { return TypePing }

// DecodeRequest parses a raw frame into one of the Request variants.
func DecodeRequest(data []byte) (Request, error) {
	var head struct {
		Type *string `json:"type"`
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errInvalidJSON
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, errInvalidJSON
	}
	if head.Type == nil || *head.Type == "" {
		return nil, errMissingType
	}

	var (
		req Request
		err error
	)
	switch *head.Type {
	case TypeRegister:
		var r RegisterRequest
		err = json.Unmarshal(trimmed, &r)
		req = r
	case TypeBroadcastNotification:
		var r BroadcastRequest
		err = json.Unmarshal(trimmed, &r)
		req = r
	case TypeJoinChannel:
		var r JoinChannelRequest
		err = json.Unmarshal(trimmed, &r)
		req = r
	case TypeLeaveChannel:
		var r LeaveChannelRequest
		err = json.Unmarshal(trimmed, &r)
		req = r
	case TypeDirectMessage:
		var r DirectMessageRequest
		err = json.Unmarshal(trimmed, &r)
		req = r
	case TypePing:
		req = PingRequest{}
	default:
		return nil, &UnknownTypeError{Type: *head.Type}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errInvalidJSON, *head.Type)
	}
	return req, nil
}

// header is embedded in every outbound envelope.
type header struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// SystemStatus is the first frame every connection receives.
type SystemStatus struct {
	header
	ClientID            string   `json:"clientId"`
	Server              string   `json:"server"`
	Version             string   `json:"version"`
	Capabilities        []string `json:"capabilities"`
	HeartbeatIntervalMs int64    `json:"heartbeatIntervalMs"`
	StaleWindowMs       int64    `json:"staleWindowMs"`
}

// RegistrationConfirmed answers register.
type RegistrationConfirmed struct {
	header
	ClientID          string `json:"clientId"`
	Portal            string `json:"portal"`
	Channel           string `json:"channel"`
	ActiveConnections int    `json:"activeConnections"`
	Service           string `json:"service,omitempty"`
	UserID            string `json:"userId,omitempty"`
}

// NotificationEnvelope is fanned out to broadcast targets.
type NotificationEnvelope struct {
	header
	Notification Notification `json:"notification"`
	From         string       `json:"from"`
}

// BroadcastConfirmed reports how many targets were reached.
type BroadcastConfirmed struct {
	header
	NotificationID string   `json:"notificationId"`
	RecipientCount int      `json:"recipientCount"`
	TargetPortals  []string `json:"targetPortals"`
}

// ChannelEvent answers join_channel and leave_channel.
type ChannelEvent struct {
	header
	Channel string `json:"channel"`
}

// MessageDelivered confirms a direct message was handed to its target.
type MessageDelivered struct {
	header
	TargetClientID string `json:"targetClientId"`
}

// DirectMessage is what the target of a direct_message receives.
type DirectMessage struct {
	header
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// Pong answers ping.
type Pong struct {
	header
}

// ErrorEnvelope reports a protocol error to the sender.
type ErrorEnvelope struct {
	header
	Error string `json:"error"`
}

// Capabilities advertised in system_status.
var capabilities = []string{
	TypeRegister,
	TypeBroadcastNotification,
	TypeJoinChannel,
	TypeLeaveChannel,
	TypeDirectMessage,
	TypePing,
}
