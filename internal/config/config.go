// Package config loads and validates fundsync configuration from a TOML
// file, applying defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"
)

// Stream transport identifiers for Config.StreamTransport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Default values. Layer 0 of the override chain: defaults -> config file ->
// environment -> CLI flags.
const (
	defaultBaseURL        = "https://api.alphasignal.app/api/v2"
	defaultSyncInterval   = "30s"
	defaultProbeInterval  = "5s"
	defaultLogLevel       = "info"
	defaultStreamBackoff  = "2s"
	defaultStreamAttempts = 5
)

// Config is the top-level fundsync configuration, decoded from TOML.
type Config struct {
	// BaseURL is the watchlist API root, e.g. "https://host/api/v2".
	BaseURL string `toml:"base_url"`

	// Token is a static bearer token for the API. Usually left empty in the
	// file and supplied via FUNDSYNC_TOKEN instead.
	Token string `toml:"token"`

	// DBPath is the SQLite state database location. Empty means the
	// platform default data directory.
	DBPath string `toml:"db_path"`

	// DeviceID identifies this client in uploaded operations. Defaults to
	// the hostname.
	DeviceID string `toml:"device_id"`

	// SyncInterval is the periodic sync cycle interval (duration string).
	SyncInterval string `toml:"sync_interval"`

	// ProbeInterval is the reachability probe interval (duration string).
	ProbeInterval string `toml:"probe_interval"`

	// StreamTransport selects the push stream transport: "sse" or "websocket".
	StreamTransport string `toml:"stream_transport"`

	// StreamBackoff is the base unit for linear reconnect backoff.
	StreamBackoff string `toml:"stream_backoff"`

	// StreamMaxAttempts caps consecutive reconnect attempts before the
	// stream client parks itself until connectivity returns.
	StreamMaxAttempts int `toml:"stream_max_attempts"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns a Config populated with all default values. Used as
// the starting point for TOML decoding so unset fields retain defaults, and
// as the fallback when no config file exists.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()

	return &Config{
		BaseURL:           defaultBaseURL,
		DeviceID:          hostname,
		SyncInterval:      defaultSyncInterval,
		ProbeInterval:     defaultProbeInterval,
		StreamTransport:   TransportSSE,
		StreamBackoff:     defaultStreamBackoff,
		StreamMaxAttempts: defaultStreamAttempts,
		LogLevel:          defaultLogLevel,
	}
}

// Validate checks the configuration for invalid values. Called by Load after
// decoding; direct constructors of Config (tests) may call it themselves.
func Validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("config: base_url must not be empty")
	}

	if _, err := time.ParseDuration(cfg.SyncInterval); err != nil {
		return fmt.Errorf("config: invalid sync_interval %q: %w", cfg.SyncInterval, err)
	}

	if _, err := time.ParseDuration(cfg.ProbeInterval); err != nil {
		return fmt.Errorf("config: invalid probe_interval %q: %w", cfg.ProbeInterval, err)
	}

	if _, err := time.ParseDuration(cfg.StreamBackoff); err != nil {
		return fmt.Errorf("config: invalid stream_backoff %q: %w", cfg.StreamBackoff, err)
	}

	if cfg.StreamTransport != TransportSSE && cfg.StreamTransport != TransportWebSocket {
		return fmt.Errorf("config: invalid stream_transport %q (want %q or %q)",
			cfg.StreamTransport, TransportSSE, TransportWebSocket)
	}

	if cfg.StreamMaxAttempts < 1 {
		return fmt.Errorf("config: stream_max_attempts must be at least 1, got %d", cfg.StreamMaxAttempts)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", cfg.LogLevel)
	}

	return nil
}

// SyncIntervalDuration returns the parsed sync interval. Call only after
// Validate has accepted the config.
func (c *Config) SyncIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SyncInterval)
	return d
}

// ProbeIntervalDuration returns the parsed probe interval.
func (c *Config) ProbeIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.ProbeInterval)
	return d
}

// StreamBackoffDuration returns the parsed stream backoff base unit.
func (c *Config) StreamBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.StreamBackoff)
	return d
}
