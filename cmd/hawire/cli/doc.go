// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the hawire binary: a tree
// of [Command] values parsed with pflag, the shared connection flags
// that turn a config file and a token into an authenticated session,
// and output helpers for JSON results.
package cli
