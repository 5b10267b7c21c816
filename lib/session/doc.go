// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the server side of the host update
// protocol and the administrative actions served next to it.
//
// A host update is a [Session] that moves through
//
//	Opened -> TargetResolved -> AwaitingSecretRequest -> Fulfilling -> Closed
//
// Calls made out of order fail with [ErrInvalidTransition]. The
// transport is one request per connection, so the session is split
// across two requests: "check" opens the session and resolves the
// target, returning a signed ticket; "secret.request" presents the
// ticket, which rebuilds the session in AwaitingSecretRequest. The
// server keeps no per-session state.
//
// A secret batch is all-or-none. Every requested name is checked with
// the access checker before anything is sealed; if any name is denied
// (or does not exist) the whole batch fails with [*PartialAccessDenied].
package session
