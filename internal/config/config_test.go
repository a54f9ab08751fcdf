package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base_url", func(c *Config) { c.BaseURL = "" }},
		{"bad sync_interval", func(c *Config) { c.SyncInterval = "soon" }},
		{"bad probe_interval", func(c *Config) { c.ProbeInterval = "-" }},
		{"bad stream_backoff", func(c *Config) { c.StreamBackoff = "2 seconds" }},
		{"bad transport", func(c *Config) { c.StreamTransport = "carrier-pigeon" }},
		{"zero attempts", func(c *Config) { c.StreamMaxAttempts = 0 }},
		{"bad log_level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.mutate(cfg)

			if err := Validate(cfg); err == nil {
				t.Errorf("Validate should reject %s", tc.name)
			}
		})
	}
}

func TestLoad_UnknownKeyFatal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "base_url = \"https://example.com/api/v2\"\nsync_intervall = \"1m\"\n"

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should reject unknown key sync_intervall")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "base_url = \"https://example.com/api/v2\"\nsync_interval = \"1m\"\n"

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseURL != "https://example.com/api/v2" {
		t.Errorf("base_url = %q", cfg.BaseURL)
	}

	if cfg.SyncInterval != "1m" {
		t.Errorf("sync_interval = %q", cfg.SyncInterval)
	}

	// Unset keys keep their defaults.
	if cfg.StreamTransport != TransportSSE {
		t.Errorf("stream_transport = %q, want default %q", cfg.StreamTransport, TransportSSE)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	if cfg.BaseURL == "" {
		t.Error("expected default base_url")
	}
}

func TestResolve_EnvToken(t *testing.T) {
	t.Setenv(EnvToken, "sekrit")
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "absent.toml"))

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if cfg.Token != "sekrit" {
		t.Errorf("token = %q, want env override", cfg.Token)
	}

	if cfg.DBPath == "" {
		t.Error("expected resolved db path")
	}
}
