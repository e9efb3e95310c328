// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the hawire configuration file.
//
// The file is named by the --config flag (via [LoadFile]) or the
// HAWIRE_CONFIG environment variable (via [Load]). There is no search
// path and no per-field environment override. Files ending in .json
// or .jsonc are JSON with comments and trailing commas; anything else
// is YAML. Values absent from the file keep their [Default].
//
// After loading, ${VAR} and ${VAR:-default} are expanded in path
// fields (token_file, capture.path). [Config.Validate] reports every
// problem at once.
package config
