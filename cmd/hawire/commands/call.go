// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
	"github.com/bureau-foundation/hawire/wire"
)

func callCommand() *cli.Command {
	var (
		data     string
		entities []string
		response bool
	)
	return connected(&cli.Command{
		Name:    "call",
		Summary: "Call a service",
		Description: `Call a Home Assistant service. The service is named as
<domain>.<service>. Service data is a JSON object; targets are given
with --entity. With --response the service's response data is
requested and printed.`,
		Usage: "hawire call <domain>.<service> [flags]",
		Examples: []cli.Example{
			{Description: "Turn on a light", Command: "hawire call light.turn_on --entity light.kitchen --data '{\"brightness_pct\": 40}'"},
			{Description: "Fetch a forecast", Command: "hawire call weather.get_forecasts --entity weather.home --data '{\"type\": \"daily\"}' --response"},
		},
	}, func(flagSet *pflag.FlagSet) {
		flagSet.StringVar(&data, "data", "", "service data as a JSON object")
		flagSet.StringSliceVar(&entities, "entity", nil, "target entity id (repeatable)")
		flagSet.BoolVar(&response, "response", false, "request and print the service response")
	}, func(ctx context.Context, connection *cli.Connection, args []string) error {
		command, err := buildServiceCall(args, data, entities, response)
		if err != nil {
			return err
		}
		var result json.RawMessage
		if err := connection.Session.Call(ctx, command, &result); err != nil {
			return fmt.Errorf("calling %s.%s: %w", command.Domain, command.Service, err)
		}
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		return connection.Output.RawJSON(result)
	})
}

// buildServiceCall turns the command line of "hawire call" into a
// call_service command.
func buildServiceCall(args []string, data string, entities []string, response bool) (*wire.CallService, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: hawire call <domain>.<service> [flags]")
	}
	domain, service, ok := strings.Cut(args[0], ".")
	if !ok || domain == "" || service == "" {
		return nil, fmt.Errorf("service %q is not of the form <domain>.<service>", args[0])
	}

	command := &wire.CallService{
		Domain:         domain,
		Service:        service,
		ReturnResponse: response,
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &command.ServiceData); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	if len(entities) > 0 {
		command.Target = &wire.Target{EntityID: entities}
	}
	return command, nil
}
