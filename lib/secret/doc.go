// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds plaintext secret material in memory that the
// kernel will not swap and that core dumps exclude.
//
// A [Buffer] is an anonymous mmap region outside the Go heap, locked
// with mlock and marked MADV_DONTDUMP. Close zeroes, unlocks and
// unmaps it. The garbage collector never sees the region, so closing
// the buffer is a deterministic point after which the plaintext is
// gone.
//
// The server decrypts stored secrets into a Buffer for exactly as long
// as re-encryption takes. The agent decrypts delivered secrets into a
// Buffer and writes them out with [Buffer.WriteTo].
package secret
