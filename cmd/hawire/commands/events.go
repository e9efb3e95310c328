// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
	"github.com/bureau-foundation/hawire/session"
	"github.com/bureau-foundation/hawire/wire"
)

// unsubscribeTimeout bounds the unsubscribe sent when a streaming
// command stops.
const unsubscribeTimeout = 5 * time.Second

func eventsCommand() *cli.Command {
	var (
		eventType string
		count     int
	)
	return connected(&cli.Command{
		Name:    "events",
		Summary: "Stream bus events",
		Description: `Subscribe to the event bus and print each event as JSON until
interrupted, or until --count events have been printed.`,
		Usage: "hawire events [flags]",
		Examples: []cli.Example{
			{Description: "Follow state changes", Command: "hawire events --type state_changed"},
			{Description: "Print the next five events of any type", Command: "hawire events --count 5"},
		},
	}, func(flagSet *pflag.FlagSet) {
		flagSet.StringVar(&eventType, "type", "", "only events of this type")
		flagSet.IntVar(&count, "count", 0, "stop after this many events (0 streams until interrupted)")
	}, func(ctx context.Context, connection *cli.Connection, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unexpected argument %q", args[0])
		}
		if count < 0 {
			return fmt.Errorf("--count must not be negative")
		}
		subscription, err := connection.Session.Subscribe(ctx, &wire.SubscribeEvents{EventType: eventType})
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		connection.Logger.Debug("subscribed", "subscription_id", subscription.ID(), "event_type", eventType)

		printed := 0
		return stream(ctx, connection, subscription, func(event wire.Event) (bool, error) {
			if err := connection.Output.RawJSON(event.Event); err != nil {
				return false, err
			}
			printed++
			return count > 0 && printed >= count, nil
		})
	})
}

// stream hands each event of subscription to handle until handle
// reports it is done, ctx ends, or the subscription ends. A
// subscription still active on return is unsubscribed.
func stream(ctx context.Context, connection *cli.Connection, subscription *session.Subscription, handle func(wire.Event) (bool, error)) error {
	defer func() {
		unsubscribeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
		defer cancel()
		if err := subscription.Unsubscribe(unsubscribeCtx); err != nil {
			connection.Logger.Warn("unsubscribing", "subscription_id", subscription.ID(), "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-subscription.Events():
			if !ok {
				return subscription.Err()
			}
			done, err := handle(event)
			if err != nil || done {
				return err
			}
		}
	}
}
