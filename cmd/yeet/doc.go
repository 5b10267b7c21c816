// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// yeet administers a yeet-server: secrets, tags, access policies and
// hosts.
//
// Every command talks to the server over its signed CBOR protocol. The
// connection comes from flags or the environment:
//
//	--server      YEET_SERVER      host:port or unix:PATH (default localhost:4337)
//	--server-key  YEET_SERVER_KEY  the server's key, as printed by "yeet-server key"
//	--key         YEET_KEY         your SSH ed25519 private key (default ~/.ssh/id_ed25519)
//
// Secret values are encrypted to the server's age key on this machine
// before they are sent. Tags are addressed by name; a mistyped name gets
// a fuzzy suggestion, and a new resource with several permitted tags and
// no --tag opens an interactive chooser when stdin is a terminal.
package main
