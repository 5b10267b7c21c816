// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package service is the request-response transport between yeet
// clients and the server.
//
// Each connection carries exactly one exchange: the client writes a
// CBOR byte string holding a sealed request (lib/envelope), the server
// verifies it, dispatches on the action name and writes back a CBOR
// byte string holding a [Response] signed by the server key. CBOR is
// self-delimiting so no framing is needed.
//
// Handlers receive the verified [Caller]. They report failures either
// as plain errors, which reach the client as a generic internal error,
// or as a [*ServiceError] whose code and message are sent verbatim.
// Access denials and unknown resources share [CodeDenied] so a client
// cannot probe for names it has no access to.
//
// Listeners are plain net.Listener values: "unix:/run/yeet.sock" or a
// TCP "host:port" (see [Listen] and [Dial]).
package service
