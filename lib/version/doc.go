// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of the yeet binaries for their
// --version flags.
package version
