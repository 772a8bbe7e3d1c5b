// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package config

import "time"

// Config is the complete NotifyHub configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Relay   RelayConfig   `koanf:"relay"`
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Logging LoggingConfig `koanf:"logging"`
	NATS    NATSConfig    `koanf:"nats"`
}

// ServerConfig controls the listener shared by the relay and the HTTP routes.
type ServerConfig struct {
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	Host              string        `koanf:"host"`
	CORSOrigin        string        `koanf:"cors_origin" validate:"required,origin"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
}

// RelayConfig tunes the hub, the liveness monitor and per-connection buffers.
type RelayConfig struct {
	// SweepInterval is how often the liveness monitor pings every connection.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	// StaleWindow is the longest a connection may go without a pong.
	StaleWindow     time.Duration `koanf:"stale_window" validate:"gtfield=SweepInterval"`
	PendingLimit    int           `koanf:"pending_limit" validate:"gte=1"`
	SendBuffer      int           `koanf:"send_buffer" validate:"gte=1"`
	InboxSize       int           `koanf:"inbox_size" validate:"gte=1"`
	MaxMessageBytes int64         `koanf:"max_message_bytes" validate:"gte=1024"`
	WriteWait       time.Duration `koanf:"write_wait" validate:"gt=0"`
	// InboundRate is frames per second per connection; 0 disables limiting.
	InboundRate  float64 `koanf:"inbound_rate" validate:"gte=0"`
	InboundBurst int     `koanf:"inbound_burst" validate:"gte=1"`
}

// HTTPConfig holds limits for the observability routes.
type HTTPConfig struct {
	// RateLimitRequests per minute per client IP; 0 disables limiting.
	RateLimitRequests int `koanf:"rate_limit_requests" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required,startswith=/"`
}

// LoggingConfig mirrors logging.Config without the writer.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig configures the optional NATS ingest bridge.
type NATSConfig struct {
	Enabled    bool   `koanf:"enabled"`
	URL        string `koanf:"url" validate:"required_if=Enabled true"`
	Subject    string `koanf:"subject" validate:"required_if=Enabled true"`
	QueueGroup string `koanf:"queue_group"`
}

// Addr returns the host:port the listener binds.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
