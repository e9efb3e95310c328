// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the hawire build.
//
// [Version], [GitCommit], [GitDirty] and [BuildTime] are injected with
// -ldflags -X. A plain `go install` leaves them at their defaults, in
// which case the module version and VCS revision recorded by the Go
// toolchain are used instead.
package version
