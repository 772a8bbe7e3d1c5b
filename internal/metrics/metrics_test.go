// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		route  string
		status string
	}{
		{"health ok", "GET", "/health", "200"},
		{"stats ok", "GET", "/stats", "200"},
		{"not found", "GET", "/*", "404"},
		{"rate limited", "GET", "/health", "429"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(tt.method, tt.route, tt.status))
			RecordHTTPRequest(tt.method, tt.route, tt.status, 3*time.Millisecond)
			after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(tt.method, tt.route, tt.status))
			if after != before+1 {
				t.Errorf("http_requests_total = %v, want %v", after, before+1)
			}
		})
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(HTTPActiveRequests); got != before+1 {
		t.Errorf("after inc = %v, want %v", got, before+1)
	}

	TrackActiveRequest(false)
	if got := testutil.ToFloat64(HTTPActiveRequests); got != before {
		t.Errorf("after dec = %v, want %v", got, before)
	}
}

func TestRecordConnectionLifecycle(t *testing.T) {
	active := testutil.ToFloat64(RelayConnectionsActive)
	total := testutil.ToFloat64(RelayConnectionsTotal)
	evictions := testutil.ToFloat64(RelayEvictions)

	RecordConnectionOpened()
	RecordConnectionOpened()
	RecordConnectionClosed(false)
	RecordConnectionClosed(true)

	if got := testutil.ToFloat64(RelayConnectionsActive); got != active {
		t.Errorf("relay_connections_active = %v, want %v", got, active)
	}
	if got := testutil.ToFloat64(RelayConnectionsTotal); got != total+2 {
		t.Errorf("relay_connections_total = %v, want %v", got, total+2)
	}
	if got := testutil.ToFloat64(RelayEvictions); got != evictions+1 {
		t.Errorf("relay_evictions_total = %v, want %v", got, evictions+1)
	}
}

func histogramSnapshot(t *testing.T) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	if err := RelayBroadcastRecipients.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestRecordBroadcast(t *testing.T) {
	count, sum := histogramSnapshot(t)

	RecordBroadcast(3)
	RecordBroadcast(0)

	gotCount, gotSum := histogramSnapshot(t)
	if gotCount != count+2 {
		t.Errorf("sample count = %d, want %d", gotCount, count+2)
	}
	if gotSum != sum+3 {
		t.Errorf("sample sum = %v, want %v", gotSum, sum+3)
	}
}
