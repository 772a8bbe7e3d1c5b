// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay connection metrics
	RelayConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of currently open relay connections",
		},
	)

	RelayConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total relay connections accepted since start",
		},
	)

	RelayMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Inbound relay frames by envelope type",
		},
		[]string{"type"},
	)

	RelayMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Outbound relay frames handed to a connection by envelope type",
		},
		[]string{"type"},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Relay protocol and transport errors by kind",
		},
		[]string{"type"}, // "invalid_json", "unknown_type", "target_offline", "rate_limited", "handler_panic", "transport"
	)

	RelayEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_evictions_total",
			Help: "Connections evicted by the liveness monitor",
		},
	)

	RelayPendingEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_pending_enqueued_total",
			Help: "Envelopes parked in the pending-delivery queue",
		},
	)

	RelayPendingDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_pending_dropped_total",
			Help: "Pending envelopes discarded without delivery",
		},
		[]string{"reason"}, // "overflow", "expired", "teardown"
	)

	RelayChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_channels",
			Help: "Number of non-empty channels",
		},
	)

	RelayBroadcastRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_recipients",
			Help:    "Recipients reached per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "HTTP requests currently in flight",
		},
	)

	// Ingest metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Messages consumed by the NATS ingest bridge",
		},
		[]string{"result"}, // "published", "invalid", "failed"
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordConnectionOpened updates connection gauges for a new socket.
func RecordConnectionOpened() {
	RelayConnectionsTotal.Inc()
	RelayConnectionsActive.Inc()
}

// RecordConnectionClosed updates the active gauge after teardown.
func RecordConnectionClosed(evicted bool) {
	RelayConnectionsActive.Dec()
	if evicted {
		RelayEvictions.Inc()
	}
}

// RecordBroadcast observes how many connections a broadcast reached.
func RecordBroadcast(recipients int) {
	RelayBroadcastRecipients.Observe(float64(recipients))
}
