// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// highlightStyle is the chroma style for JSON on a terminal.
const highlightStyle = "monokai"

// Output writes command results to stdout, highlighting JSON when the
// destination is a color terminal.
type Output struct {
	w         io.Writer
	formatter string
}

// NewOutput returns an Output for w. Colors are used only when w is a
// terminal, noColor is false, and the environment allows them
// (NO_COLOR, CLICOLOR_FORCE and TERM are honoured).
func NewOutput(w io.Writer, noColor bool) *Output {
	output := &Output{w: w}
	if noColor {
		return output
	}
	file, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return output
	}
	output.formatter = formatterFor(termenv.EnvColorProfile())
	return output
}

// formatterFor picks the chroma formatter matching a color profile.
// The empty string means no highlighting.
func formatterFor(profile termenv.Profile) string {
	switch profile {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI256:
		return "terminal256"
	case termenv.ANSI:
		return "terminal16"
	default:
		return ""
	}
}

// JSON writes value as indented JSON.
func (o *Output) JSON(value any) error {
	data, err := json.MarshalIndent(normalizeNilSlice(value), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return o.write(data)
}

// RawJSON re-indents and writes an undecoded JSON document.
func (o *Output) RawJSON(raw json.RawMessage) error {
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return o.write(indented.Bytes())
}

// Printf writes plain text.
func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *Output) write(document []byte) error {
	if o.formatter == "" {
		_, err := fmt.Fprintf(o.w, "%s\n", document)
		return err
	}
	if err := quick.Highlight(o.w, string(document)+"\n", "json", o.formatter, highlightStyle); err != nil {
		return fmt.Errorf("highlighting output: %w", err)
	}
	return nil
}

// normalizeNilSlice turns a nil slice into an empty one of the same
// type so that it prints as [] rather than null.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
