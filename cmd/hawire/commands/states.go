// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
	"github.com/bureau-foundation/hawire/wire"
)

func statesCommand() *cli.Command {
	var entities []string
	return connected(&cli.Command{
		Name:    "states",
		Summary: "Print entity states",
		Description: `Fetch the current state of every entity with get_states and print them
as JSON. With --entity, print only the named entities; naming an
entity the server does not know is an error.`,
		Usage: "hawire states [flags]",
		Examples: []cli.Example{
			{Description: "All states", Command: "hawire states"},
			{Description: "Two lights", Command: "hawire states --entity light.kitchen --entity light.hall"},
		},
	}, func(flagSet *pflag.FlagSet) {
		flagSet.StringSliceVar(&entities, "entity", nil, "entity id to print (repeatable)")
	}, func(ctx context.Context, connection *cli.Connection, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unexpected argument %q", args[0])
		}
		var states []wire.State
		if err := connection.Session.Call(ctx, &wire.GetStates{}, &states); err != nil {
			return fmt.Errorf("fetching states: %w", err)
		}
		selected, err := selectStates(states, entities)
		if err != nil {
			return err
		}
		return connection.Output.JSON(selected)
	})
}

// selectStates keeps the states of the named entities, in the order
// named. No names keeps everything, sorted by entity id.
func selectStates(states []wire.State, entities []string) ([]wire.State, error) {
	if len(entities) == 0 {
		slices.SortFunc(states, func(a, b wire.State) int {
			return strings.Compare(a.EntityID, b.EntityID)
		})
		return states, nil
	}

	byID := make(map[string]wire.State, len(states))
	for _, state := range states {
		byID[state.EntityID] = state
	}
	selected := make([]wire.State, 0, len(entities))
	var missing []string
	for _, entityID := range entities {
		state, ok := byID[entityID]
		if !ok {
			missing = append(missing, entityID)
			continue
		}
		selected = append(selected, state)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown entity %s", strings.Join(missing, ", "))
	}
	return selected, nil
}
