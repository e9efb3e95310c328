// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/hawire/capture"
	"github.com/bureau-foundation/hawire/lib/config"
	"github.com/bureau-foundation/hawire/lib/secret"
	"github.com/bureau-foundation/hawire/session"
	"github.com/bureau-foundation/hawire/transport"
)

// DefaultConnectTimeout bounds dialing plus authentication.
const DefaultConnectTimeout = 30 * time.Second

// ConnectionFlags are the flags of every command that talks to a
// server. Flag values override the config file.
type ConnectionFlags struct {
	ConfigPath     string
	Server         string
	TokenFile      string
	CapturePath    string
	LogLevel       string
	NoColor        bool
	ConnectTimeout time.Duration
}

// AddFlags registers the connection flags on flagSet.
func (f *ConnectionFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigPath, "config", "", "config file, YAML or JSONC (default $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&f.Server, "server", "", "Home Assistant URL, e.g. https://ha.example:8123")
	flagSet.StringVar(&f.TokenFile, "token-file", "", "file holding the long-lived access token (- reads stdin)")
	flagSet.StringVar(&f.CapturePath, "capture", "", "record every frame to this capture journal")
	flagSet.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	flagSet.BoolVar(&f.NoColor, "no-color", false, "disable colored output")
	flagSet.DurationVar(&f.ConnectTimeout, "connect-timeout", DefaultConnectTimeout, "time allowed for connecting and authenticating")
}

// Resolve loads the config (--config, then $HAWIRE_CONFIG, then
// defaults), applies the flag overrides and validates the result.
func (f *ConnectionFlags) Resolve() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case f.ConfigPath != "":
		cfg, err = config.LoadFile(f.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if f.Server != "" {
		cfg.Server = f.Server
	}
	if f.TokenFile != "" {
		cfg.TokenFile = f.TokenFile
	}
	if f.CapturePath != "" {
		cfg.Capture.Path = f.CapturePath
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Connection is an authenticated session plus what the command needs
// to report on it.
type Connection struct {
	Session *session.Session
	Config  *config.Config
	Logger  *slog.Logger
	Output  *Output

	capture *capture.Writer
}

// Connect resolves the configuration, dials the server and
// authenticates. stdout receives command output.
func (f *ConnectionFlags) Connect(ctx context.Context, stdout io.Writer) (*Connection, error) {
	cfg, err := f.Resolve()
	if err != nil {
		return nil, err
	}
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := NewCommandLogger(level)

	pingInterval, err := cfg.PingIntervalDuration()
	if err != nil {
		return nil, err
	}
	pongTimeout, err := cfg.PongTimeoutDuration()
	if err != nil {
		return nil, err
	}

	endpoint, err := transport.WebSocketURL(cfg.Server)
	if err != nil {
		return nil, err
	}

	token, err := readToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	defer token.Close()

	var writer *capture.Writer
	var tap session.Tap
	if cfg.Capture.Path != "" {
		compression, err := capture.ParseCompression(cfg.Capture.Compression)
		if err != nil {
			return nil, err
		}
		writer, err = capture.Create(cfg.Capture.Path, capture.WriterConfig{
			Compression: compression,
			Recipients:  cfg.Capture.Recipients,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		tap = writer
	}

	timeout := f.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := transport.DialWebSocket(connectCtx, endpoint, transport.WebSocketOptions{})
	if err != nil {
		closeCapture(writer, logger)
		return nil, err
	}
	logger.Debug("dialed", "url", endpoint)

	connected, err := session.Connect(connectCtx, session.Config{
		Conn:             conn,
		AccessToken:      token,
		Logger:           logger,
		EventBuffer:      cfg.EventBuffer,
		PingInterval:     pingInterval,
		PongTimeout:      pongTimeout,
		CoalesceMessages: cfg.CoalesceMessages,
		Tap:              tap,
	})
	if err != nil {
		closeCapture(writer, logger)
		if errors.Is(err, session.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("%w (check the access token)", err)
		}
		return nil, err
	}

	return &Connection{
		Session: connected,
		Config:  cfg,
		Logger:  logger,
		Output:  NewOutput(stdout, f.NoColor),
		capture: writer,
	}, nil
}

// Close ends the session and finishes the capture journal.
func (c *Connection) Close() error {
	var errs []error
	if err := c.Session.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			errs = append(errs, err)
		}
		c.Logger.Info("capture written", "path", c.Config.Capture.Path, "records", c.capture.Count())
	}
	return errors.Join(errs...)
}

func closeCapture(writer *capture.Writer, logger *slog.Logger) {
	if writer == nil {
		return
	}
	if err := writer.Close(); err != nil {
		logger.Warn("closing capture journal", "error", err)
	}
}

// readToken reads the access token from path, or prompts for it when
// path is empty and stdin is a terminal.
func readToken(path string) (*secret.Buffer, error) {
	if path != "" {
		token, err := secret.ReadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("reading access token: %w", err)
		}
		return token, nil
	}

	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		return nil, fmt.Errorf("no access token: set token_file in the config or pass --token-file")
	}
	fmt.Fprint(os.Stderr, "Access token: ")
	tokenBytes, err := term.ReadPassword(stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}
	token, err := secret.NewFromBytes(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}
	return token, nil
}
