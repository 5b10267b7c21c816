// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package tagpick helps administrators name tags. [Rank] orders tag
// names by fzf fuzzy match against what was typed, which powers "did
// you mean" hints for unknown tag names. [Choose] runs a small terminal
// chooser over the tags a new resource may carry, for when more than
// one is allowed and none was given on the command line.
package tagpick
