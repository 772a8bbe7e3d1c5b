// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/notifyhub/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// fakeClock is a manually advanced clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHub(t *testing.T, opts Options) (*Hub, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts.Now = clock.Now
	if opts.SendBuffer == 0 {
		opts.SendBuffer = 32
	}
	return NewHub(opts), clock
}

// connectTest adds a socketless connection and consumes its system_status.
func connectTest(t *testing.T, h *Hub) *Connection {
	t.Helper()
	c := newConnection(nil, "test", h.opts)
	h.connect(c)
	env := readEnvelope(t, c)
	if env["type"] != TypeSystemStatus {
		t.Fatalf("Expected first frame system_status, got %v", env["type"])
	}
	return c
}

func registerTest(t *testing.T, h *Hub, c *Connection, portal string) {
	t.Helper()
	h.handleFrame(c, []byte(`{"type":"register","portal":"`+portal+`"}`), false)
	env := readEnvelope(t, c)
	if env["type"] != TypeRegistrationConfirmed {
		t.Fatalf("Expected registration_confirmed, got %v", env["type"])
	}
}

func readEnvelope(t *testing.T, c *Connection) map[string]interface{} {
	t.Helper()
	select {
	case frame := <-c.send:
		var env map[string]interface{}
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("Failed to decode frame %s: %v", frame, err)
		}
		return env
	default:
		t.Fatalf("Expected a frame for %s, none queued", c.id)
		return nil
	}
}

func expectNoFrame(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("Expected no frame for %s, got %s", c.id, frame)
	default:
	}
}

func TestConnect_SendsSystemStatus(t *testing.T) {
	h, _ := newTestHub(t, Options{Version: "1.2.3"})
	c := newConnection(nil, "test", h.opts)
	h.connect(c)

	env := readEnvelope(t, c)
	if env["type"] != TypeSystemStatus {
		t.Fatalf("Expected system_status, got %v", env["type"])
	}
	if env["clientId"] != c.id {
		t.Errorf("Expected clientId %s, got %v", c.id, env["clientId"])
	}
	if env["server"] != ServerName || env["version"] != "1.2.3" {
		t.Errorf("Unexpected server info: %v %v", env["server"], env["version"])
	}
	if env["heartbeatIntervalMs"] != float64((2 * time.Minute).Milliseconds()) {
		t.Errorf("Expected heartbeatIntervalMs 120000, got %v", env["heartbeatIntervalMs"])
	}
	if env["timestamp"] != "2026-03-01T12:00:00.000Z" {
		t.Errorf("Unexpected timestamp %v", env["timestamp"])
	}
	if h.registry.len() != 1 || h.stats.totalConnections != 1 {
		t.Errorf("Expected 1 active and 1 total, got %d and %d", h.registry.len(), h.stats.totalConnections)
	}
}

func TestRegister(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"register","portal":"broker","userId":"u-7","service":"loads"}`), false)
	env := readEnvelope(t, a)

	if env["channel"] != "portal:broker" || env["portal"] != "broker" {
		t.Errorf("Unexpected registration_confirmed: %v", env)
	}
	if env["activeConnections"] != float64(1) {
		t.Errorf("Expected activeConnections 1, got %v", env["activeConnections"])
	}
	if env["userId"] != "u-7" || env["service"] != "loads" {
		t.Errorf("Expected identity echo, got %v", env)
	}
	if a.portal != "broker" || a.userID != "u-7" || a.service != "loads" || !a.registered {
		t.Errorf("Identity not stored: %+v", a.info())
	}
}

func TestRegister_Idempotent(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	registerTest(t, h, a, "broker")
	registerTest(t, h, a, "broker")

	if got := h.router.counts()["portal:broker"]; got != 1 {
		t.Errorf("Expected portal:broker to have 1 member, got %d", got)
	}
	if h.router.len() != 1 {
		t.Errorf("Expected 1 channel, got %d", h.router.len())
	}
}

func TestRegister_ChangePortalLeavesOld(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	registerTest(t, h, a, "broker")
	registerTest(t, h, a, "dispatch")

	counts := h.router.counts()
	if _, ok := counts["portal:broker"]; ok {
		t.Errorf("Expected portal:broker to be removed, got %v", counts)
	}
	if counts["portal:dispatch"] != 1 {
		t.Errorf("Expected portal:dispatch to have 1 member, got %v", counts)
	}
}

func TestRegister_MissingPortal(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"register"}`), false)
	env := readEnvelope(t, a)

	if env["portal"] != UnknownPortal || env["channel"] != "portal:unknown" {
		t.Errorf("Expected unknown portal, got %v", env)
	}
}

func TestUpdateIdentity_UnknownID(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	if h.registry.updateIdentity("gone", "broker", "", "") {
		t.Error("Expected updateIdentity on unknown id to report false")
	}
}

func TestBroadcast_NoSelfEcho(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	b := connectTest(t, h)
	registerTest(t, h, a, "broker")
	registerTest(t, h, b, "broker")

	h.handleFrame(a, []byte(`{"type":"broadcast_notification","notification":{"id":"n1","title":"Load assigned","targetPortals":["broker"]}}`), false)

	got := readEnvelope(t, b)
	if got["type"] != TypeNotification || got["from"] != a.id {
		t.Errorf("Expected notification from A, got %v", got)
	}

	confirm := readEnvelope(t, a)
	if confirm["type"] != TypeBroadcastConfirmed {
		t.Fatalf("Expected broadcast_confirmed for sender, got %v", confirm["type"])
	}
	if confirm["recipientCount"] != float64(1) {
		t.Errorf("Expected recipientCount 1, got %v", confirm["recipientCount"])
	}
	expectNoFrame(t, a)
}

func TestBroadcast_GlobalFallback(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"absent target list", `{"type":"broadcast_notification","notification":{"id":"n2","title":"All hands"}}`},
		{"empty target list", `{"type":"broadcast_notification","notification":{"id":"n2","title":"All hands","targetPortals":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHub(t, Options{})
			a := connectTest(t, h)
			b := connectTest(t, h)
			c := connectTest(t, h)
			registerTest(t, h, a, "admin")
			registerTest(t, h, b, "driver")

			h.handleFrame(a, []byte(tt.payload), false)

			for _, target := range []*Connection{b, c} {
				if env := readEnvelope(t, target); env["type"] != TypeNotification {
					t.Errorf("Expected notification for %s, got %v", target.id, env["type"])
				}
			}
			confirm := readEnvelope(t, a)
			if confirm["recipientCount"] != float64(2) {
				t.Errorf("Expected recipientCount 2, got %v", confirm["recipientCount"])
			}
			portals, ok := confirm["targetPortals"].([]interface{})
			if !ok || len(portals) != 0 {
				t.Errorf("Expected empty targetPortals array, got %#v", confirm["targetPortals"])
			}
			expectNoFrame(t, a)
		})
	}
}

func TestBroadcast_RecipientCountExcludesUnreachable(t *testing.T) {
	h, _ := newTestHub(t, Options{SendBuffer: 1})
	a := connectTest(t, h)
	b := connectTest(t, h)
	closing := connectTest(t, h)
	full := connectTest(t, h)
	for _, c := range []*Connection{a, b, closing, full} {
		registerTest(t, h, c, "dispatch")
	}

	closing.open.Store(false)
	full.send <- []byte(`{}`)

	h.handleFrame(a, []byte(`{"type":"broadcast_notification","notification":{"id":"n3","title":"Detour","targetPortals":["dispatch"]}}`), false)

	confirm := readEnvelope(t, a)
	if confirm["recipientCount"] != float64(1) {
		t.Errorf("Expected recipientCount 1, got %v", confirm["recipientCount"])
	}
	if h.pending.depth(closing.id) != 1 || h.pending.depth(full.id) != 1 {
		t.Errorf("Expected unreachable targets to have 1 pending frame each, got %d and %d",
			h.pending.depth(closing.id), h.pending.depth(full.id))
	}
}

func TestBroadcast_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing notification", `{"type":"broadcast_notification"}`},
		{"null notification", `{"type":"broadcast_notification","notification":null}`},
		{"missing title", `{"type":"broadcast_notification","notification":{"id":"n1"}}`},
		{"missing id", `{"type":"broadcast_notification","notification":{"title":"x"}}`},
		{"notification not an object", `{"type":"broadcast_notification","notification":"hello"}`},
		{"targetPortals wrong type", `{"type":"broadcast_notification","notification":{"id":"n1","title":"x","targetPortals":"broker"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHub(t, Options{})
			a := connectTest(t, h)
			b := connectTest(t, h)

			h.handleFrame(a, []byte(tt.payload), false)

			expectNoFrame(t, a)
			expectNoFrame(t, b)
			if h.registry.len() != 2 {
				t.Errorf("Expected connections to survive, got %d", h.registry.len())
			}
		})
	}
}

func TestBroadcast_PreservesExtraFields(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	b := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"broadcast_notification","notification":{"id":"n4","title":"Rate con","priority":"high","metadata":{"loadId":"L-99"}}}`), false)

	env := readEnvelope(t, b)
	n, ok := env["notification"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected notification object, got %#v", env["notification"])
	}
	if n["priority"] != "high" {
		t.Errorf("Expected priority to be relayed, got %v", n["priority"])
	}
	meta, _ := n["metadata"].(map[string]interface{})
	if meta["loadId"] != "L-99" {
		t.Errorf("Expected nested metadata to be relayed, got %v", n["metadata"])
	}
}

func TestDirectMessage(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	b := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"direct_message","targetClientId":"`+b.id+`","data":{"text":"call me"}}`), false)

	got := readEnvelope(t, b)
	if got["type"] != TypeDirectMessage || got["from"] != a.id {
		t.Errorf("Expected direct_message from A, got %v", got)
	}
	data, _ := got["data"].(map[string]interface{})
	if data["text"] != "call me" {
		t.Errorf("Expected data to be relayed, got %v", got["data"])
	}

	ack := readEnvelope(t, a)
	if ack["type"] != TypeMessageDelivered || ack["targetClientId"] != b.id {
		t.Errorf("Expected message_delivered, got %v", ack)
	}
}

func TestDirectMessage_UnknownTarget(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"nonexistent id", `{"type":"direct_message","targetClientId":"nobody","data":{}}`},
		{"missing id", `{"type":"direct_message","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHub(t, Options{})
			a := connectTest(t, h)
			b := connectTest(t, h)

			h.handleFrame(a, []byte(tt.payload), false)

			env := readEnvelope(t, a)
			if env["type"] != TypeError || env["error"] != errTextTargetOffline {
				t.Errorf("Expected target offline error, got %v", env)
			}
			expectNoFrame(t, b)
			if _, frames := h.pending.total(); frames != 0 {
				t.Errorf("Direct messages must not be parked, got %d pending", frames)
			}
		})
	}
}

func TestDirectMessage_FullTargetNotQueued(t *testing.T) {
	h, _ := newTestHub(t, Options{SendBuffer: 1})
	a := connectTest(t, h)
	b := connectTest(t, h)
	b.send <- []byte(`{}`)

	h.handleFrame(a, []byte(`{"type":"direct_message","targetClientId":"`+b.id+`","data":1}`), false)

	if env := readEnvelope(t, a); env["error"] != errTextTargetOffline {
		t.Errorf("Expected target offline error, got %v", env)
	}
	if h.pending.depth(b.id) != 0 {
		t.Errorf("Expected nothing parked for target, got %d", h.pending.depth(b.id))
	}
}

func TestJoinLeaveChannel(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"join_channel","channel":"ops-room"}`), false)
	if env := readEnvelope(t, a); env["type"] != TypeChannelJoined || env["channel"] != "ops-room" {
		t.Errorf("Expected channel_joined, got %v", env)
	}
	if h.router.counts()["ops-room"] != 1 {
		t.Errorf("Expected ops-room with 1 member")
	}

	h.handleFrame(a, []byte(`{"type":"leave_channel","channel":"ops-room"}`), false)
	if env := readEnvelope(t, a); env["type"] != TypeChannelLeft {
		t.Errorf("Expected channel_left, got %v", env)
	}
	if _, ok := h.router.counts()["ops-room"]; ok {
		t.Error("Expected empty channel to be garbage collected")
	}
}

func TestJoinChannel_EmptyNameStillConfirmed(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"join_channel"}`), false)

	if env := readEnvelope(t, a); env["type"] != TypeChannelJoined {
		t.Errorf("Expected channel_joined, got %v", env)
	}
	if h.router.len() != 0 {
		t.Errorf("Expected no channel to be created, got %v", h.router.counts())
	}
}

func TestPing(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"ping"}`), false)

	if env := readEnvelope(t, a); env["type"] != TypePong {
		t.Errorf("Expected pong, got %v", env["type"])
	}
}

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"invalid json", `{not json`, errTextInvalidFormat},
		{"json array", `[1,2,3]`, errTextInvalidFormat},
		{"missing type", `{"portal":"broker"}`, errTextMissingType},
		{"unknown type", `{"type":"teleport"}`, "unknown message type: teleport"},
		{"wrong field shape", `{"type":"register","portal":42}`, errTextInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHub(t, Options{})
			a := connectTest(t, h)

			h.handleFrame(a, []byte(tt.payload), false)

			env := readEnvelope(t, a)
			if env["type"] != TypeError || env["error"] != tt.want {
				t.Errorf("Expected error %q, got %v", tt.want, env)
			}
			if !h.isLive(a) {
				t.Error("Bad frames must not close the connection")
			}
			if a.messagesReceived != 1 || h.stats.messagesReceived != 1 {
				t.Errorf("Expected received counters of 1, got %d and %d", a.messagesReceived, h.stats.messagesReceived)
			}
		})
	}
}

func TestRateLimitedFrame(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"ping"}`), true)

	if env := readEnvelope(t, a); env["error"] != errTextRateLimited {
		t.Errorf("Expected rate limit error, got %v", env)
	}
}

func TestMessageCounters(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	b := connectTest(t, h)

	h.handleFrame(a, []byte(`{"type":"broadcast_notification","notification":{"id":"n","title":"t"}}`), false)
	readEnvelope(t, b)
	readEnvelope(t, a)

	// system_status x2, notification, broadcast_confirmed
	if h.stats.messagesSent != 4 {
		t.Errorf("Expected 4 sent, got %d", h.stats.messagesSent)
	}
	if a.messagesSent != 2 || b.messagesSent != 2 {
		t.Errorf("Expected 2 sent per connection, got %d and %d", a.messagesSent, b.messagesSent)
	}
	if a.messagesReceived != 1 || b.messagesReceived != 0 {
		t.Errorf("Unexpected received counters %d and %d", a.messagesReceived, b.messagesReceived)
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	b := connectTest(t, h)
	registerTest(t, h, a, "broker")
	h.handleFrame(a, []byte(`{"type":"join_channel","channel":"ops"}`), false)
	readEnvelope(t, a)
	h.park(a.id, TypeNotification, []byte(`{}`))

	h.disconnect(a, reasonClientClosed)
	h.disconnect(a, reasonClientClosed)

	if h.registry.len() != 1 {
		t.Errorf("Expected 1 active connection, got %d", h.registry.len())
	}
	if h.router.len() != 0 {
		t.Errorf("Expected all of A's channels to be removed, got %v", h.router.counts())
	}
	if h.pending.depth(a.id) != 0 {
		t.Errorf("Expected pending frames to be discarded")
	}
	if a.open.Load() {
		t.Error("Expected connection to be closed")
	}
	select {
	case <-a.done:
	default:
		t.Error("Expected done to be closed")
	}
	if !h.isLive(b) {
		t.Error("Expected B to be unaffected")
	}
}

func TestFramesFromClosedConnectionIgnoredByLoop(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	h.disconnect(a, reasonClientClosed)

	if h.isLive(a) {
		t.Error("Expected disconnected connection to be dead for the loop")
	}
}

func TestPendingFlushedInOrder(t *testing.T) {
	h, _ := newTestHub(t, Options{SendBuffer: 2})
	a := connectTest(t, h)

	a.send <- []byte(`{"type":"filler"}`)
	a.send <- []byte(`{"type":"filler"}`)

	h.handleFrame(a, []byte(`{"type":"join_channel","channel":"one"}`), false)
	h.handleFrame(a, []byte(`{"type":"join_channel","channel":"two"}`), false)
	if h.pending.depth(a.id) != 2 {
		t.Fatalf("Expected 2 parked frames, got %d", h.pending.depth(a.id))
	}

	<-a.send
	<-a.send

	h.handleFrame(a, []byte(`{"type":"ping"}`), false)

	first := readEnvelope(t, a)
	second := readEnvelope(t, a)
	if first["channel"] != "one" || second["channel"] != "two" {
		t.Errorf("Expected parked frames in order, got %v then %v", first["channel"], second["channel"])
	}
	if h.pending.depth(a.id) != 1 {
		t.Errorf("Expected pong to be parked behind the flush, got depth %d", h.pending.depth(a.id))
	}
}

func TestSnapshot_DirectAndStale(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := connectTest(t, h)
	registerTest(t, h, a, "broker")

	s := h.snapshot()
	if s.ActiveConnections != 1 || s.Channels["portal:broker"] != 1 {
		t.Errorf("Unexpected snapshot %+v", s)
	}
	if len(s.Clients) != 1 || s.Clients[0].Portal != "broker" || !s.Clients[0].Connected {
		t.Errorf("Unexpected client listing %+v", s.Clients)
	}

	// The loop is not running, so Snapshot falls back to the cached copy.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	cached := h.Snapshot(ctx)
	if !cached.Stale {
		t.Error("Expected a stale snapshot when the hub loop is not running")
	}
}
