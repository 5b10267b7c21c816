// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// seedFile holds the 32-byte ed25519 seed of the ticket signing key.
const seedFile = "ticket-signing.seed"

// LoadKeypair loads the ticket signing key from stateDir.
func LoadKeypair(stateDir string) (ed25519.PrivateKey, error) {
	seed, err := os.ReadFile(filepath.Join(stateDir, seedFile))
	if err != nil {
		return nil, fmt.Errorf("reading ticket signing key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ticket signing key has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// LoadOrGenerateKeypair loads the ticket signing key, or generates and
// saves one when none exists. A file that exists but cannot be loaded
// is an error, never silently replaced.
func LoadOrGenerateKeypair(stateDir string) (ed25519.PrivateKey, bool, error) {
	private, err := LoadKeypair(stateDir)
	if err == nil {
		return private, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, false, fmt.Errorf("generating ticket signing key: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(stateDir, seedFile), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("creating ticket signing key: %w", err)
	}
	if _, err := file.Write(seed); err != nil {
		file.Close()
		return nil, false, fmt.Errorf("writing ticket signing key: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, false, fmt.Errorf("writing ticket signing key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), true, nil
}
