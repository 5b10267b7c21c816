// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime/debug"
)

// Release builds set these with -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/yeet-rs/yeet/lib/version.Version=0.3.0 -X github.com/yeet-rs/yeet/lib/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "0.1.0-dev"
	Commit  = ""
)

// stamp is the revision and dirty flag of a build.
type stamp struct {
	revision string
	modified bool
	time     string
}

// readStamp prefers the linker-injected commit and falls back to the
// VCS settings the go command records in the binary.
func readStamp(info *debug.BuildInfo, ok bool) stamp {
	s := stamp{revision: Commit}
	if !ok {
		return s
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if s.revision == "" {
				s.revision = setting.Value
			}
		case "vcs.modified":
			s.modified = setting.Value == "true"
		case "vcs.time":
			s.time = setting.Value
		}
	}
	if len(s.revision) > 12 {
		s.revision = s.revision[:12]
	}
	return s
}

func (s stamp) String() string {
	if s.revision == "" {
		return "unknown commit"
	}
	text := s.revision
	if s.modified {
		text += "-dirty"
	}
	if s.time != "" {
		text += ", " + s.time
	}
	return text
}

// Info returns the version line printed by --version.
func Info() string {
	return fmt.Sprintf("%s (%s)", Version, readStamp(debug.ReadBuildInfo()))
}
