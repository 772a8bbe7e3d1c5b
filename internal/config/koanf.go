// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/tomtom215/notifyhub/internal/validation"
)

// DefaultConfigPaths lists where a config file is searched, first match wins.
var DefaultConfigPaths = []string{
	"notifyhub.yaml",
	"notifyhub.yml",
	"/etc/notifyhub/notifyhub.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              3001,
			Host:              "0.0.0.0",
			CORSOrigin:        "http://localhost:3000",
			ShutdownTimeout:   10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Relay: RelayConfig{
			SweepInterval:   2 * time.Minute,
			StaleWindow:     5 * time.Minute,
			PendingLimit:    100,
			SendBuffer:      256,
			InboxSize:       1024,
			MaxMessageBytes: 512 * 1024,
			WriteWait:       10 * time.Second,
			InboundRate:     50,
			InboundBurst:    100,
		},
		HTTP: HTTPConfig{
			RateLimitRequests: 600,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		NATS: NATSConfig{
			Enabled:    false,
			URL:        "nats://127.0.0.1:4222",
			Subject:    "notifications.broadcast",
			QueueGroup: "notifyhub",
		},
	}
}

// Default returns the built-in configuration without reading any source.
func Default() *Config {
	return defaultConfig()
}

// envMappings maps recognised environment variables to koanf paths.
var envMappings = map[string]string{
	"port":                "server.port",
	"host":                "server.host",
	"cors_origin":         "server.cors_origin",
	"shutdown_timeout":    "server.shutdown_timeout",
	"read_header_timeout": "server.read_header_timeout",

	"heartbeat_interval":  "relay.sweep_interval",
	"stale_window":        "relay.stale_window",
	"pending_queue_limit": "relay.pending_limit",
	"send_buffer":         "relay.send_buffer",
	"inbox_size":          "relay.inbox_size",
	"max_message_bytes":   "relay.max_message_bytes",
	"write_wait":          "relay.write_wait",
	"inbound_rate":        "relay.inbound_rate",
	"inbound_burst":       "relay.inbound_burst",

	"http_rate_limit": "http.rate_limit_requests",

	"metrics_enabled": "metrics.enabled",
	"metrics_path":    "metrics.path",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"nats_enabled":     "nats.enabled",
	"nats_url":         "nats.url",
	"nats_subject":     "nats.subject",
	"nats_queue_group": "nats.queue_group",
}

// flagMappings maps CLI flag names to koanf paths.
var flagMappings = map[string]string{
	"port":               "server.port",
	"host":               "server.host",
	"cors-origin":        "server.cors_origin",
	"heartbeat-interval": "relay.sweep_interval",
	"stale-window":       "relay.stale_window",
	"log-level":          "logging.level",
	"nats-url":           "nats.url",
}

// envTransformFunc returns "" for variables that are not mapped so the env
// provider skips them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load builds the configuration from defaults, the optional file, the
// environment and explicitly set flags, then validates it. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(flags); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagMappings[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load command-line flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, verr.Error())
	}
	return nil
}

// findConfigFile prefers --config, then $CONFIG_PATH, then the default paths.
func findConfigFile(flags *pflag.FlagSet) string {
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed && f.Value.String() != "" {
			return f.Value.String()
		}
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
