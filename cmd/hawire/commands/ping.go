// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
)

func pingCommand() *cli.Command {
	var count int
	return connected(&cli.Command{
		Name:    "ping",
		Summary: "Check that the server answers",
		Description: `Connect, authenticate, and send ping commands. Prints the round trip
time of each pong and the server's Home Assistant version.`,
		Usage: "hawire ping [flags]",
		Examples: []cli.Example{
			{Description: "Ping three times", Command: "hawire ping --count 3 --server http://homeassistant.local:8123 --token-file ~/.ha-token"},
		},
	}, func(flagSet *pflag.FlagSet) {
		flagSet.IntVar(&count, "count", 1, "number of pings to send")
	}, func(ctx context.Context, connection *cli.Connection, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unexpected argument %q", args[0])
		}
		if count < 1 {
			return fmt.Errorf("--count must be at least 1")
		}
		output := connection.Output
		output.Printf("connected to Home Assistant %s\n", connection.Session.HAVersion())
		for i := 1; i <= count; i++ {
			rtt, err := connection.Session.Ping(ctx)
			if err != nil {
				return fmt.Errorf("ping %d: %w", i, err)
			}
			output.Printf("pong %d: %s\n", i, rtt.Round(time.Microsecond))
		}
		return nil
	})
}
