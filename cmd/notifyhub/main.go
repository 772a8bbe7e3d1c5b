// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package main is the entry point for the NotifyHub relay server.
//
// NotifyHub accepts WebSocket connections from portal front ends, lets each
// connection register a portal identity, and relays notifications, channel
// messages and direct messages between them. /health and /stats expose the
// hub's counters; /metrics exposes Prometheus series.
//
// Configuration precedence is flags, then environment, then a YAML file,
// then built-in defaults. See internal/config for every key.
//
// Usage:
//
//	notifyhub --port 3001 --cors-origin https://portal.example.com
//	PORT=4000 STALE_WINDOW=10m notifyhub
//	notifyhub --config /etc/notifyhub/notifyhub.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/notifyhub/internal/logging"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("notifyhub exited with error")
		os.Exit(1)
	}
}

// buildRootCmd creates the root command. Running it without a subcommand
// starts the server, the same as "serve".
func buildRootCmd() *cobra.Command {
	opts := &serveOptions{}

	rootCmd := &cobra.Command{
		Use:   "notifyhub",
		Short: "NotifyHub - real-time portal notification relay",
		Long: `NotifyHub relays notifications between portal front ends over WebSocket.

Clients connect to /notifications, register a portal name, and receive
broadcasts targeted at that portal. Health and statistics are served at
/health and /stats.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags())
		},
	}
	bindServeFlags(rootCmd, opts)

	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Example: `  # Defaults: port 3001, CORS origin http://localhost:3000
  notifyhub serve

  # Custom port and liveness windows
  notifyhub serve --port 4000 --heartbeat-interval 1m --stale-window 3m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags())
		},
	}
	bindServeFlags(cmd, opts)
	return cmd
}
