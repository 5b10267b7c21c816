// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the yeet administrative CLI.
//
// A [Command] is a node in a tree: groups carry Subcommands, leaves
// carry Run. [Command.Execute] dispatches on the first positional
// argument, parses the leaf's pflag set, and hands Run a context and a
// logger scoped to the command path. Mistyped commands and flags get a
// "did you mean" suggestion by edit distance.
//
// Commands print human-readable tables by default. Those that embed
// [JSONOutput] also accept --json.
package cli
