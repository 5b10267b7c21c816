// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed handles every encryption step a secret goes through.
//
// At rest, secrets are age-encrypted to the server's x25519 [Keypair].
// When a host asks for a secret, [Service.SealForHost] decrypts the
// stored ciphertext into a [secret.Buffer] and re-encrypts it to the
// host's SSH ed25519 public key (filippo.io/age/agessh). The host opens
// the result with its SSH host key through [OpenForHost]. Plaintext
// only ever lives in locked, non-dumpable memory and is zeroed before
// the call returns.
//
// A ciphertext that fails to decrypt is reported as
// [ErrDecryptionFailure]. That error means corrupted storage or a
// wrong server key; callers must not retry it.
package sealed
