// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package config loads NotifyHub configuration with koanf.
//
// Values are layered, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file: $CONFIG_PATH, ./notifyhub.yaml or /etc/notifyhub/notifyhub.yaml
//  3. Environment variables (PORT, CORS_ORIGIN, HEARTBEAT_INTERVAL, ...)
//  4. Command-line flags that were explicitly set (--port, --cors-origin, ...)
//
// The merged result is validated with go-playground/validator before it is
// returned, so callers can rely on every field being in range:
//
//	cfg, err := config.Load(cmd.Flags())
//	if err != nil {
//	    return err
//	}
//
// Only explicitly mapped environment variables are read. Anything else in the
// process environment is ignored.
//
// Example file:
//
//	server:
//	  port: 3001
//	  cors_origin: "https://portal.example.com"
//	relay:
//	  sweep_interval: 2m
//	  stale_window: 5m
//	nats:
//	  enabled: true
//	  url: nats://nats.internal:4222
package config
