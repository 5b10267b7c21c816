// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// yeet-server holds the fleet's secrets, policies and host targets and
// serves the signed CBOR protocol agents and administrators use.
//
// Usage:
//
//	yeet-server [--config FILE] [serve]
//	yeet-server [--config FILE] key
//	yeet-server [--config FILE] put-secret NAME --tag TAG... [--file PATH]
//
// The state directory holds the SQLite database, the age key secrets
// are stored under and the ed25519 key responses and session tickets
// are signed with. "key" prints the public half of the signing key in
// authorized_keys form for agent configuration. "put-secret" stores a
// secret read from the terminal (or stdin) directly into the database.
//
// When no policy exists, the identity of the SSH key named by
// server.init_key (YEET_INIT_KEY) becomes the first administrator.
package main
