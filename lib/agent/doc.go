// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent converges one host to the system its server assigns.
//
// Each update is a cycle through
//
//	Idle -> StoreFetched -> SecretsRequested -> SecretsMaterialized -> Activating -> Committed | RolledBack
//
// The target store path is fetched using only the secrets of the
// current generation (the substituter's netrc). The fetched path's
// manifest names the secrets the new system needs; they are requested
// from the server in one batch, opened with the host's SSH key and
// written to a pending generation. The system is then activated
// against that generation. Success commits it, failure deletes it.
// Until a commit the current generation is never touched.
//
// Cycles are single flight: [Agent.RunCycle] waits for a running cycle
// to finish. Activation is never cancelled once started; an
// activation record written beforehand lets [Agent.Run] settle an
// activation interrupted by a crash or reboot.
package agent
