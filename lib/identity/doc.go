// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity names callers by their ed25519 keys.
//
// Hosts are identified by their SSH host key and administrators by
// their SSH user key. An [Identity] is a BLAKE3 keyed hash of the raw
// public key under a fixed domain key, rendered in lowercase base32.
// It is stable, fixed-length, and reveals nothing about the key type
// beyond what the key itself reveals.
//
// [Key] holds a private key in a [secret.Buffer] so the signing key
// never lives on the Go heap longer than parsing requires.
package identity
