// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the file Load reads.
const EnvironmentVariable = "HAWIRE_CONFIG"

// Capture compression names.
const (
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Config is the hawire configuration.
type Config struct {
	// Server is the Home Assistant base URL (http, https, ws or wss).
	Server string `yaml:"server" json:"server"`

	// TokenFile holds a long-lived access token. "-" reads stdin.
	// Empty means the CLI prompts on the terminal.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// PingInterval is how often the session pings the server. "0s"
	// disables the heartbeat.
	PingInterval string `yaml:"ping_interval" json:"ping_interval"`

	// PongTimeout bounds each heartbeat ping.
	PongTimeout string `yaml:"pong_timeout" json:"pong_timeout"`

	// EventBuffer is the per-subscription event queue length.
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`

	// CoalesceMessages lets the server batch frames into arrays.
	CoalesceMessages bool `yaml:"coalesce_messages" json:"coalesce_messages"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Capture configures the frame journal.
	Capture CaptureConfig `yaml:"capture" json:"capture"`
}

// CaptureConfig configures the capture journal. An empty Path
// disables capturing.
type CaptureConfig struct {
	Path string `yaml:"path" json:"path"`

	// Compression is zstd, lz4 or none.
	Compression string `yaml:"compression" json:"compression"`

	// Recipients are age X25519 public keys (age1...). When set, the
	// journal body is encrypted to all of them.
	Recipients []string `yaml:"recipients" json:"recipients"`
}

// Default returns the values used for anything a file leaves out.
func Default() *Config {
	return &Config{
		Server:       "http://homeassistant.local:8123",
		PingInterval: "30s",
		PongTimeout:  "10s",
		EventBuffer:  256,
		LogLevel:     "info",
		Capture: CaptureConfig{
			Compression: CompressionZstd,
		},
	}
}

// Load loads the file named by HAWIRE_CONFIG. It fails if the variable
// is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your hawire config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads path over Default and expands variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default. extension selects the format:
// ".json" and ".jsonc" are JSONC, anything else YAML.
func Parse(data []byte, extension string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.TokenFile = expandVars(c.TokenFile, vars)
	c.Capture.Path = expandVars(c.Capture.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, checking vars before
// the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// PingIntervalDuration parses PingInterval.
func (c *Config) PingIntervalDuration() (time.Duration, error) {
	return parseDuration("ping_interval", c.PingInterval)
}

// PongTimeoutDuration parses PongTimeout.
func (c *Config) PongTimeoutDuration() (time.Duration, error) {
	return parseDuration("pong_timeout", c.PongTimeout)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return duration, nil
}

// Validate checks every field and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Server == "" {
		errs = append(errs, fmt.Errorf("server is required"))
	} else if parsed, err := url.Parse(c.Server); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	} else {
		switch parsed.Scheme {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("server scheme must be http, https, ws or wss, got %q", parsed.Scheme))
		}
		if parsed.Host == "" {
			errs = append(errs, fmt.Errorf("server %q has no host", c.Server))
		}
	}

	if _, err := c.PingIntervalDuration(); err != nil {
		errs = append(errs, err)
	}
	if pong, err := c.PongTimeoutDuration(); err != nil {
		errs = append(errs, err)
	} else if pong == 0 {
		errs = append(errs, fmt.Errorf("pong_timeout must be positive"))
	}

	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.Capture.Compression {
	case CompressionZstd, CompressionLZ4, CompressionNone:
	default:
		errs = append(errs, fmt.Errorf("capture.compression must be one of %s, %s, %s; got %q",
			CompressionZstd, CompressionLZ4, CompressionNone, c.Capture.Compression))
	}
	for index, recipient := range c.Capture.Recipients {
		if _, err := age.ParseX25519Recipient(recipient); err != nil {
			errs = append(errs, fmt.Errorf("capture.recipients[%d]: %w", index, err))
		}
	}

	return errors.Join(errs...)
}
