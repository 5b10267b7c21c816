// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the yeet test suites:
// short socket directories, bounded channel receives, and servers
// that run for the lifetime of a test.
package testutil
