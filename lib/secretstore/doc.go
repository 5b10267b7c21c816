// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package secretstore persists secrets in SQLite, encrypted at rest to
// the server's age keypair. Plaintext is accepted only in a
// secret.Buffer, which the store closes once the value is encrypted.
//
// Every secret carries a non-empty tag set used by the access checker.
// [Secret] exposes metadata only; the ciphertext is read separately
// through [Store.GetCiphertext] and never leaves the server without
// being re-sealed for a host.
package secretstore
