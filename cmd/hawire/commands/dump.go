// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hawire/capture"
	"github.com/bureau-foundation/hawire/cmd/hawire/cli"
	"github.com/bureau-foundation/hawire/lib/codec"
)

// dumpedRecord is the printed form of a capture record.
type dumpedRecord struct {
	Sequence  uint64          `json:"seq"`
	Time      time.Time       `json:"time"`
	Direction string          `json:"direction"`
	Frame     json.RawMessage `json:"frame,omitempty"`
	RawFrame  string          `json:"raw_frame,omitempty"`
}

func dumpCommand() *cli.Command {
	var (
		identityPath string
		diagnostic   bool
		noColor      bool
	)
	return &cli.Command{
		Name:    "dump",
		Summary: "Print the frames of a capture journal",
		Description: `Read a capture journal written with --capture and print its records
in order. Every record's sequence number and digest are checked; the
first bad record stops the dump with an error. Encrypted journals need
an age identity file.

With --diag each record is printed in CBOR diagnostic notation instead
of JSON.`,
		Usage: "hawire dump <journal> [flags]",
		Examples: []cli.Example{
			{Description: "Dump a journal", Command: "hawire dump session.hawcap"},
			{Description: "Dump an encrypted journal", Command: "hawire dump session.hawcap --identity ~/.config/hawire/capture.key"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.StringVar(&identityPath, "identity", "", "age identity file for encrypted journals")
			flagSet.BoolVar(&diagnostic, "diag", false, "print CBOR diagnostic notation")
			flagSet.BoolVar(&noColor, "no-color", false, "disable colored output")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: hawire dump <journal> [flags]")
			}
			var identities []age.Identity
			if identityPath != "" {
				var err error
				identities, err = capture.LoadIdentities(identityPath)
				if err != nil {
					return err
				}
			}
			reader, err := capture.Open(args[0], identities...)
			if err != nil {
				return err
			}
			defer reader.Close()
			return dumpRecords(ctx, reader, cli.NewOutput(stdout, noColor), diagnostic)
		},
	}
}

func dumpRecords(ctx context.Context, reader *capture.Reader, output *cli.Output, diagnostic bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if diagnostic {
			encoded, err := codec.Marshal(record)
			if err != nil {
				return fmt.Errorf("encoding record %d: %w", record.Sequence, err)
			}
			notation, err := codec.Diagnose(encoded)
			if err != nil {
				return fmt.Errorf("diagnosing record %d: %w", record.Sequence, err)
			}
			output.Printf("%s\n", notation)
			continue
		}

		dumped := dumpedRecord{
			Sequence:  record.Sequence,
			Time:      record.Time,
			Direction: record.Direction.String(),
		}
		if json.Valid(record.Frame) {
			dumped.Frame = json.RawMessage(record.Frame)
		} else {
			dumped.RawFrame = string(record.Frame)
		}
		if err := output.JSON(dumped); err != nil {
			return err
		}
	}
}
