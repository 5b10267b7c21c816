// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope authenticates requests and responses between the
// CLI, the agent and the server.
//
// A request is a CBOR [Request] carrying the caller's ed25519 public
// key, the action name, the issue time and the action body, followed by
// an ed25519 signature over those bytes (the servicetoken framing). The
// server derives the caller identity from the key, so a valid signature
// is the whole proof of identity. Requests older or newer than the skew
// window are rejected.
//
// Responses are signed by the server and bind the digest of the request
// they answer, so a response cannot be replayed against a later request.
package envelope
