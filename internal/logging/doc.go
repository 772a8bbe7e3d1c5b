// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

// Package logging provides the process-wide zerolog logger for NotifyHub.
//
// Every package logs through this one instance so relay events, HTTP access
// and supervisor restarts share a single structured stream.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "console"})
//
//	logging.Info().Str("client_id", id).Msg("client connected")
//	logging.Ctx(r.Context()).Warn().Msg("snapshot timed out")
//
// # Components
//
// Long-lived components take a child logger so their lines can be filtered:
//
//	log := logging.WithComponent("relay-hub")
//	log.Info().Int("active", n).Msg("hub started")
//
// # slog bridge
//
// suture (through sutureslog) and watermill both speak log/slog. Hand them
// NewSlogLogger() and their events are written by zerolog:
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
//
// Always terminate an event chain with Msg or Send, otherwise nothing is written.
package logging
