// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

//go:build nats

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/notifyhub/internal/config"
)

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		ServerName: "notifyhub-test",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestSubscriber_RelaysBrokerMessages(t *testing.T) {
	url := startEmbeddedNATS(t)

	cfg := config.Default().NATS
	cfg.Enabled = true
	cfg.URL = url

	hub := newFakeHub()
	s := NewSubscriber(cfg, hub)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	if !s.IsRunning() {
		t.Fatal("subscriber should be running")
	}

	nc, err := natsgo.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	payload := []byte(`{"notification":{"id":"n1","title":"Maintenance","targetPortals":["broker"]},"from":"ops"}`)

	// Publish until the subscription is visible to the server.
	deadline := time.After(5 * time.Second)
	for len(hub.Calls()) == 0 {
		if err := nc.Publish(cfg.Subject, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case <-hub.got:
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("notification was not relayed")
		}
	}

	call := hub.Calls()[0]
	if call.notification.ID != "n1" || call.from != "ops" {
		t.Errorf("call = %+v", call)
	}
	if len(call.notification.TargetPortals) != 1 || call.notification.TargetPortals[0] != "broker" {
		t.Errorf("targetPortals = %v", call.notification.TargetPortals)
	}
}

func TestSubscriber_StartFailsWithoutBroker(t *testing.T) {
	cfg := config.Default().NATS
	cfg.URL = "nats://127.0.0.1:1"

	s := NewSubscriber(cfg, newFakeHub())
	if err := s.Start(context.Background()); err == nil {
		s.Shutdown(context.Background())
		t.Fatal("expected Start to fail without a broker")
	}
	if s.IsRunning() {
		t.Error("subscriber should not be running after failed Start")
	}
}

func TestSubscriber_ShutdownIdempotent(t *testing.T) {
	url := startEmbeddedNATS(t)

	cfg := config.Default().NATS
	cfg.URL = url

	s := NewSubscriber(cfg, newFakeHub())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Shutdown(ctx)
	s.Shutdown(ctx)

	if s.IsRunning() {
		t.Error("subscriber should be stopped")
	}
}
