// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the yeet binaries:
// fatal error reporting before the structured logger exists, and the
// signal-aware root context.
package process
