// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.EventBuffer != 256 {
		t.Errorf("event_buffer = %d, want 256", cfg.EventBuffer)
	}
	if cfg.Capture.Compression != CompressionZstd {
		t.Errorf("capture.compression = %q", cfg.Capture.Compression)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when HAWIRE_CONFIG is not set")
	}
	if !strings.HasPrefix(err.Error(), "HAWIRE_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hawire.yaml")
	content := `
server: https://ha.example.net
token_file: ${HOME}/.config/hawire/token
ping_interval: 15s
capture:
  path: ${HAWIRE_TEST_CAPTURE_DIR:-/var/tmp}/session.hawcap
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvironmentVariable, configPath)
	t.Setenv("HOME", "/home/tester")
	t.Setenv("HAWIRE_TEST_CAPTURE_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server != "https://ha.example.net" {
		t.Errorf("server = %q", cfg.Server)
	}
	if cfg.TokenFile != "/home/tester/.config/hawire/token" {
		t.Errorf("token_file = %q", cfg.TokenFile)
	}
	if cfg.Capture.Path != "/var/tmp/session.hawcap" {
		t.Errorf("capture.path = %q", cfg.Capture.Path)
	}
	// Absent fields keep their defaults.
	if cfg.PongTimeout != "10s" || cfg.EventBuffer != 256 || cfg.Capture.Compression != CompressionZstd {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if interval, err := cfg.PingIntervalDuration(); err != nil || interval != 15*time.Second {
		t.Errorf("PingIntervalDuration() = %v, %v", interval, err)
	}
}

func TestLoadJSONC(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "hawire.jsonc")
	content := `{
		// Local instance.
		"server": "ws://127.0.0.1:8123/api/websocket",
		"event_buffer": 32,
		"coalesce_messages": true,
		"capture": {
			"compression": "lz4", /* smaller CPU cost */
		},
	}`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.EventBuffer != 32 || !cfg.CoalesceMessages || cfg.Capture.Compression != CompressionLZ4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := LoadFile(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	broken := filepath.Join(tmpDir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFile(broken); err == nil {
		t.Error("invalid YAML accepted")
	}
}

func TestValidate(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid recipient", func(c *Config) { c.Capture.Recipients = []string{identity.Recipient().String()} }, ""},
		{"heartbeat disabled", func(c *Config) { c.PingInterval = "0s" }, ""},
		{"missing server", func(c *Config) { c.Server = "" }, "server is required"},
		{"bad scheme", func(c *Config) { c.Server = "ftp://ha.local" }, "server scheme"},
		{"no host", func(c *Config) { c.Server = "http://" }, "has no host"},
		{"bad ping interval", func(c *Config) { c.PingInterval = "soon" }, "ping_interval"},
		{"negative ping interval", func(c *Config) { c.PingInterval = "-1s" }, "must not be negative"},
		{"zero pong timeout", func(c *Config) { c.PongTimeout = "0s" }, "pong_timeout must be positive"},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }, "event_buffer"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"bad compression", func(c *Config) { c.Capture.Compression = "gzip" }, "capture.compression"},
		{"bad recipient", func(c *Config) { c.Capture.Recipients = []string{"age1notakey"} }, "capture.recipients[0]"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server = ""
	cfg.EventBuffer = -1
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server", "event_buffer", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("HAWIRE_TEST_VAR", "from-env")
	vars := map[string]string{"HOME": "/home/x"}
	tests := map[string]string{
		"${HOME}/token":                   "/home/x/token",
		"${HAWIRE_TEST_VAR}/a":            "from-env/a",
		"${HAWIRE_TEST_UNSET:-fallback}/b": "fallback/b",
		"${HAWIRE_TEST_UNSET}/c":           "/c",
		"plain":                            "plain",
	}
	for input, want := range tests {
		if got := expandVars(input, vars); got != want {
			t.Errorf("expandVars(%q) = %q, want %q", input, got, want)
		}
	}
}
