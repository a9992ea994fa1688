// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via ldflags:
//
//	-X github.com/autobrr/torrentdash/internal/buildinfo.Version=v1.2.3
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var UserAgent = fmt.Sprintf("torrentdash/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)

// String renders version, commit and build date for the version command.
func String() string {
	out := Version
	if Commit != "" {
		out += " (" + Commit + ")"
	}
	if Date != "" {
		out += " built " + Date
	}
	return out
}
