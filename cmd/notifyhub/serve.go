// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tomtom215/notifyhub/internal/api"
	"github.com/tomtom215/notifyhub/internal/config"
	"github.com/tomtom215/notifyhub/internal/ingest"
	"github.com/tomtom215/notifyhub/internal/logging"
	"github.com/tomtom215/notifyhub/internal/relay"
	"github.com/tomtom215/notifyhub/internal/supervisor"
	"github.com/tomtom215/notifyhub/internal/supervisor/services"
)

// serveOptions holds flag destinations. Values reach the configuration
// through config.Load, which only applies flags the user set.
type serveOptions struct {
	configPath        string
	port              int
	host              string
	corsOrigin        string
	heartbeatInterval time.Duration
	staleWindow       time.Duration
	logLevel          string
	natsURL           string
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	d := config.Default()
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	f.IntVarP(&opts.port, "port", "p", d.Server.Port, "TCP port to listen on (env PORT)")
	f.StringVar(&opts.host, "host", d.Server.Host, "Interface to bind (env HOST)")
	f.StringVar(&opts.corsOrigin, "cors-origin", d.Server.CORSOrigin, "Allowed CORS origin or * (env CORS_ORIGIN)")
	f.DurationVar(&opts.heartbeatInterval, "heartbeat-interval", d.Relay.SweepInterval, "Liveness sweep interval (env HEARTBEAT_INTERVAL)")
	f.DurationVar(&opts.staleWindow, "stale-window", d.Relay.StaleWindow, "Evict clients silent for longer than this (env STALE_WINDOW)")
	f.StringVar(&opts.logLevel, "log-level", d.Logging.Level, "Log level: trace, debug, info, warn, error (env LOG_LEVEL)")
	f.StringVar(&opts.natsURL, "nats-url", d.NATS.URL, "NATS server for the ingest bridge (env NATS_URL)")
}

// listen binds addr before the supervisor starts so a busy port fails fast.
func listen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("port already in use on %s; set --port or PORT to another port: %w", addr, err)
		}
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return l, nil
}

// publicHost is the host clients should use in printed URLs.
func publicHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return "localhost"
	}
	return host
}

func runServe(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := listen(cfg.Server.Addr())
	if err != nil {
		logging.Error().Err(err).Int("port", cfg.Server.Port).Msg("Failed to bind HTTP listener")
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	hub := relay.NewHub(relay.NewOptions(cfg.Relay, version))
	tree.AddRelayService(services.NewRelayHubService(hub))
	tree.AddRelayService(services.NewLivenessMonitorService(relay.NewMonitor(hub)))

	if cfg.NATS.Enabled {
		if ingest.Available {
			tree.AddIngestService(services.NewIngestServiceWithTimeout(
				ingest.NewSubscriber(cfg.NATS, hub), cfg.Server.ShutdownTimeout))
			logging.Info().Str("subject", cfg.NATS.Subject).Msg("NATS ingest added to supervisor tree")
		} else {
			logging.Warn().Err(ingest.ErrNotEnabled).Msg("NATS_ENABLED is set but ingest is unavailable")
		}
	}

	router := api.NewRouter(cfg, hub)
	server := api.NewHTTPServer(cfg, router.Handler())
	tree.AddAPIService(services.NewHTTPServerService(server, listener, cfg.Server.ShutdownTimeout))

	base := net.JoinHostPort(publicHost(cfg.Server.Host), strconv.Itoa(cfg.Server.Port))
	logging.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("health_url", "http://"+base+"/health").
		Str("websocket_url", "ws://"+base+api.WebSocketPath).
		Str("cors_origin", cfg.Server.CORSOrigin).
		Dur("heartbeat_interval", cfg.Relay.SweepInterval).
		Dur("stale_window", cfg.Relay.StaleWindow).
		Msg("NotifyHub listening")

	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	logging.Info().Msg("NotifyHub stopped")
	return nil
}
