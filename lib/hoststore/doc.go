// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package hoststore records the hosts enrolled with the server: their
// SSH ed25519 key, display name, tags, deployment target and detach
// flag. A [Host] is an authorization resource through its tags.
package hoststore
