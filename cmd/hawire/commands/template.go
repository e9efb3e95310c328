// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
	"github.com/bureau-foundation/hawire/wire"
)

func templateCommand() *cli.Command {
	var (
		timeout float64
		watch   bool
		strict  bool
	)
	return connected(&cli.Command{
		Name:    "template",
		Summary: "Render a template",
		Description: `Render a Jinja template on the server with render_template and print
the result. With --watch, keep printing each re-render as the
template's inputs change, until interrupted.`,
		Usage: "hawire template <template> [flags]",
		Examples: []cli.Example{
			{Description: "Count lights that are on", Command: "hawire template \"{{ states.light | selectattr('state', 'eq', 'on') | list | count }}\""},
			{Description: "Follow the sun", Command: "hawire template \"{{ states('sun.sun') }}\" --watch"},
		},
	}, func(flagSet *pflag.FlagSet) {
		flagSet.Float64Var(&timeout, "timeout", 0, "seconds the server may spend on the first render")
		flagSet.BoolVar(&watch, "watch", false, "print every re-render until interrupted")
		flagSet.BoolVar(&strict, "strict", false, "fail on undefined variables")
	}, func(ctx context.Context, connection *cli.Connection, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: hawire template <template> [flags]")
		}
		subscription, err := connection.Session.Subscribe(ctx, &wire.RenderTemplate{
			Template:     args[0],
			Timeout:      timeout,
			Strict:       strict,
			ReportErrors: true,
		})
		if err != nil {
			return fmt.Errorf("rendering template: %w", err)
		}

		return stream(ctx, connection, subscription, func(event wire.Event) (bool, error) {
			var rendered wire.TemplateEvent
			if err := event.Decode(&rendered); err != nil {
				return false, err
			}
			if rendered.Error != "" {
				if !watch {
					return false, fmt.Errorf("template error: %s", rendered.Error)
				}
				connection.Logger.Warn("template error", "level", rendered.Level, "error", rendered.Error)
				return false, nil
			}
			if err := printRendered(connection.Output, rendered.Result); err != nil {
				return false, err
			}
			return !watch, nil
		})
	})
}

// printRendered prints a string result as plain text and anything
// else as JSON.
func printRendered(output *cli.Output, result json.RawMessage) error {
	var text string
	if err := json.Unmarshal(result, &text); err == nil {
		output.Printf("%s\n", text)
		return nil
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return output.RawJSON(result)
}
