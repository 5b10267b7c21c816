// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

// SocketDir returns a fresh directory under /tmp for Unix sockets.
// t.TempDir paths can push a socket path past the 108-byte sun_path
// limit.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "yeet-")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(directory) })
	return directory
}
