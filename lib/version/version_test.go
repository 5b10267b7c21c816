// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestReadStamp(t *testing.T) {
	saved := Commit
	t.Cleanup(func() { Commit = saved })

	info := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
	}}

	tests := []struct {
		name   string
		commit string
		info   *debug.BuildInfo
		ok     bool
		want   string
	}{
		{"build info", "", info, true, "0123456789ab-dirty, 2026-03-01T12:00:00Z"},
		{"linker commit wins", "abc1234", info, true, "abc1234-dirty, 2026-03-01T12:00:00Z"},
		{"linker commit only", "abc1234", nil, false, "abc1234"},
		{"nothing known", "", nil, false, "unknown commit"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			Commit = test.commit
			if got := readStamp(test.info, test.ok).String(); got != test.want {
				t.Errorf("stamp = %q, want %q", got, test.want)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	if got := Info(); !strings.HasPrefix(got, Version+" (") {
		t.Errorf("Info() = %q, want it to start with %q", got, Version)
	}
}
