// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package authorization decides which caller may perform which action
// on which resource.
//
// The model has three parts:
//
//   - [Action]: an operation on a kind of resource (host.rename,
//     secret.request, ...), or the [AnyAction] wildcard.
//   - [Policy]: an immutable grant of a set of actions over a tag scope
//     to exactly one caller identity. An identity may hold several
//     policies; their effect is the union. A policy's scope is never
//     empty.
//   - Resources: anything with a tag set ([Resource]). This package
//     keeps no registry of resources; each store owns its resources'
//     tags and hands them to the checker.
//
// [Store] persists policies and tag definitions in SQLite and serves
// reads from an in-memory index under a read lock. Writes are
// serialized: one SQLite IMMEDIATE transaction, then the index update,
// both under the write lock.
//
// [Checker.Check] is the single authorization primitive. It computes
// the caller's authorized scope for the action and intersects it with
// the resource's tags using [tag.Intersects]. It never errors: false
// means deny, and callers report a deny exactly as they report a
// missing resource so existence does not leak.
package authorization
