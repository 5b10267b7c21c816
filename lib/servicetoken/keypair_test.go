// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateKeypair(t *testing.T) {
	stateDir := t.TempDir()

	original, generated, err := LoadOrGenerateKeypair(stateDir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeypair() error: %v", err)
	}
	if !generated {
		t.Error("expected generated=true on first boot")
	}
	info, err := os.Stat(filepath.Join(stateDir, seedFile))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("seed file permissions = %o, want 0600", mode)
	}

	loaded, generated, err := LoadOrGenerateKeypair(stateDir)
	if err != nil {
		t.Fatalf("second LoadOrGenerateKeypair() error: %v", err)
	}
	if generated {
		t.Error("expected generated=false on subsequent boot")
	}
	if !original.Equal(loaded) {
		t.Error("loaded key does not match original")
	}
}

func TestLoadOrGenerateKeypairRejectsCorruptedSeed(t *testing.T) {
	stateDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(stateDir, seedFile), []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadOrGenerateKeypair(stateDir); err == nil {
		t.Fatal("LoadOrGenerateKeypair() succeeded over a corrupted seed")
	}
}
