// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the hawire command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
	"github.com/bureau-foundation/hawire/lib/version"
)

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// Root returns the top-level "hawire" command.
func Root() *cli.Command {
	var showVersion bool
	root := &cli.Command{
		Name:    "hawire",
		Summary: "Talk to Home Assistant over its websocket API",
		Description: `hawire connects to a Home Assistant server over the websocket API,
authenticates with a long-lived access token, and runs one command.

Settings come from the file named by --config or $HAWIRE_CONFIG (YAML,
or JSON with comments for .json/.jsonc files). Connection flags override
the file. Without a token file, hawire prompts for the token when stdin
is a terminal.`,
		Subcommands: []*cli.Command{
			pingCommand(),
			statesCommand(),
			callCommand(),
			eventsCommand(),
			templateCommand(),
			dumpCommand(),
			versionCommand(),
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("hawire", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
			return flagSet
		},
	}
	root.Run = func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			return root.UnknownCommand(args[0])
		}
		if showVersion {
			cli.NewOutput(stdout, true).Printf("hawire %s\n", version.Info())
			return nil
		}
		root.PrintHelp(os.Stderr)
		return fmt.Errorf("subcommand required")
	}
	return root
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(ctx context.Context, args []string) error {
			cli.NewOutput(stdout, true).Printf("hawire %s\n", version.Full())
			return nil
		},
	}
}

// connected builds a command that runs with an authenticated
// connection. addFlags registers the command's own flags next to the
// connection flags.
func connected(command *cli.Command, addFlags func(*pflag.FlagSet), run func(ctx context.Context, connection *cli.Connection, args []string) error) *cli.Command {
	var connection cli.ConnectionFlags
	command.Flags = func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(command.Name, pflag.ContinueOnError)
		connection.AddFlags(flagSet)
		if addFlags != nil {
			addFlags(flagSet)
		}
		return flagSet
	}
	command.Run = func(ctx context.Context, args []string) error {
		conn, err := connection.Connect(ctx, stdout)
		if err != nil {
			return err
		}
		runErr := run(ctx, conn, args)
		if closeErr := conn.Close(); closeErr != nil && runErr == nil {
			return closeErr
		}
		return runErr
	}
	return command
}
