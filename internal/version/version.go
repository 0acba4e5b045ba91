/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version holds build version information.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Version is the current version of soundtrigger.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/soundtrigger/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit is the source revision, set at build time.
var Commit = "dev"

// String returns the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("soundtrigger %s (%s, %s)", Version, Commit, runtime.Version())
}

// Compare compares two semver versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b
func Compare(a, b string) int {
	aParts := parse(a)
	bParts := parse(b)

	for i := 0; i < 3; i++ {
		if aParts[i] < bParts[i] {
			return -1
		}
		if aParts[i] > bParts[i] {
			return 1
		}
	}
	return 0
}

// parse parses a semver string into major, minor, patch.
func parse(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")

	var result [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		fmt.Sscanf(parts[i], "%d", &result[i])
	}
	return result
}
