// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package generation keeps the host-local snapshots of materialized
// secrets.
//
// Layout under the root directory (by default /etc/yeet):
//
//	secret.d/<sequence>/           one directory per generation (0751)
//	secret.d/<sequence>/.generation  CBOR [Metadata]
//	secret -> secret.d/<sequence>  the current generation
//	activation                     CBOR [Record] while an activation runs
//
// A new generation is built as a [Pending] by [Store.Begin], filled with
// [Pending.Place] through a [Sink], sealed, and then either committed
// or rolled back. [Store.Commit] replaces the secret symlink with a
// rename, so a reader resolving the link sees the old generation or the
// new one and never a mix. Exactly one generation is current.
//
// The activation record is written atomically (temporary file, fsync,
// rename, fsync of the parent directory) before a system activation
// starts. If the agent dies during activation, [Store.Recover] decides
// from the running system path whether the pending generation is
// committed or discarded.
package generation
