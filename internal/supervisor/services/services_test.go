// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*RelayHubService)(nil)
	_ suture.Service = (*LivenessMonitorService)(nil)
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*IngestService)(nil)
)

// mockRunner is a test double for ContextRunner.
type mockRunner struct {
	runErr   error
	runCount atomic.Int32
	returnAt time.Duration
}

func (m *mockRunner) RunWithContext(ctx context.Context) error {
	m.runCount.Add(1)
	if m.runErr != nil {
		return m.runErr
	}
	if m.returnAt > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.returnAt):
			return nil
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRelayHubService(t *testing.T) {
	t.Run("delegates to RunWithContext", func(t *testing.T) {
		runner := &mockRunner{}
		svc := NewRelayHubService(runner)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := svc.Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() = %v, want deadline exceeded", err)
		}
		if runner.runCount.Load() != 1 {
			t.Errorf("run count = %d, want 1", runner.runCount.Load())
		}
	})

	t.Run("propagates hub error", func(t *testing.T) {
		want := errors.New("relay hub panic: boom")
		svc := NewRelayHubService(&mockRunner{runErr: want})

		if err := svc.Serve(context.Background()); !errors.Is(err, want) {
			t.Errorf("Serve() = %v, want %v", err, want)
		}
	})

	t.Run("String", func(t *testing.T) {
		if got := NewRelayHubService(&mockRunner{}).String(); got != "relay-hub" {
			t.Errorf("String() = %q", got)
		}
	})
}

func TestLivenessMonitorService(t *testing.T) {
	t.Run("stopped hub is not restarted", func(t *testing.T) {
		svc := NewLivenessMonitorService(&mockRunner{returnAt: time.Millisecond})

		err := svc.Serve(context.Background())
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
		}
	})

	t.Run("context cancel", func(t *testing.T) {
		svc := NewLivenessMonitorService(&mockRunner{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want canceled", err)
		}
	})
}

func TestHTTPServerService(t *testing.T) {
	t.Run("serves on pre-bound listener and shuts down", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		server := &http.Server{
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "ok")
			}),
			ReadHeaderTimeout: time.Second,
		}
		svc := NewHTTPServerService(server, l, time.Second)
		addr := l.Addr().String()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "ok" {
			t.Errorf("body = %q", body)
		}

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after cancel")
		}
	})

	t.Run("server error is returned", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		want := errors.New("accept failed")
		svc := NewHTTPServerService(&failingServer{err: want}, l, time.Second)

		if err := svc.Serve(context.Background()); !errors.Is(err, want) {
			t.Errorf("Serve() = %v, want %v", err, want)
		}
	})

	t.Run("rebinds after restart", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		svc := NewHTTPServerService(&failingServer{err: errors.New("x")}, l, time.Second)

		first, err := svc.takeListener()
		if err != nil || first != l {
			t.Fatalf("first listener = %v, %v", first, err)
		}
		_ = first.Close()

		second, err := svc.takeListener()
		if err != nil {
			t.Fatalf("rebind: %v", err)
		}
		defer second.Close()
		if second.Addr().String() != l.Addr().String() {
			t.Errorf("rebound to %s, want %s", second.Addr(), l.Addr())
		}
	})
}

type failingServer struct {
	err error
}

func (f *failingServer) Serve(l net.Listener) error {
	_ = l.Close()
	return f.err
}

func (f *failingServer) Shutdown(ctx context.Context) error {
	return nil
}

// mockIngest is a test double for IngestRunner.
type mockIngest struct {
	running  atomic.Bool
	started  chan struct{}
	startErr error
}

func (m *mockIngest) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.running.Store(true)
	close(m.started)
	return nil
}

func (m *mockIngest) Shutdown(ctx context.Context) {
	m.running.Store(false)
}

func (m *mockIngest) IsRunning() bool {
	return m.running.Load()
}

func TestIngestService(t *testing.T) {
	t.Run("start then shutdown on cancel", func(t *testing.T) {
		m := &mockIngest{started: make(chan struct{})}
		svc := NewIngestService(m)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		select {
		case <-m.started:
		case <-time.After(time.Second):
			t.Fatal("runner was not started")
		}
		if !m.IsRunning() {
			t.Error("runner should be running")
		}

		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want canceled", err)
		}
		if m.IsRunning() {
			t.Error("runner should be shut down")
		}
	})

	t.Run("start error is returned", func(t *testing.T) {
		want := errors.New("no broker")
		svc := NewIngestService(&mockIngest{startErr: want})

		if err := svc.Serve(context.Background()); !errors.Is(err, want) {
			t.Errorf("Serve() = %v, want %v", err, want)
		}
	})

	t.Run("non-positive timeout uses default", func(t *testing.T) {
		svc := NewIngestServiceWithTimeout(&mockIngest{}, 0)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("shutdownTimeout = %v", svc.shutdownTimeout)
		}
	})
}
