// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicetoken implements the ed25519-signed tokens the server
// hands to hosts.
//
// A deployment session spans two requests. The check response carries
// a [Ticket] binding the host's identity to the store path it was told
// to fetch; the host returns the ticket with its secret request and
// the server rebuilds the session from it. The server stores nothing
// between the two requests.
//
// # Wire format
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// The split point is always len(token) - 64. [Sign] and [Open] expose
// the framing so request envelopes can share it.
//
// Tickets are single-use: the server records spent ticket IDs in a
// [Spent] set until their natural expiry.
package servicetoken
