// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package tag implements the tag set algebra used for authorization
// scoping.
//
// A [Tag] is either a specific opaque token or the wildcard [Any]. The
// wildcard is a distinct variant, not a reserved string, so no
// administrator-chosen token can ever be mistaken for it. Tags carry no
// hierarchy: two specific tags are equal only when their tokens are
// byte-for-byte equal.
//
// [Intersects] is the only comparison the authorization layer uses. It
// is pure and symmetric, and a wildcard on either side matches
// everything.
package tag
