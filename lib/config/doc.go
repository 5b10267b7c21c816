// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for yeet-server
// and yeet-agent.
//
// Configuration is loaded from a single file named by either the
// YEET_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). Without either, [Load] returns the defaults. There
// is no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on addresses and paths after
// loading: ${HOME}, ${VAR} and ${VAR:-default} patterns are expanded.
// The defaults use this to honor YEET_HOST, YEET_PORT, YEET_STATE and
// YEET_INIT_KEY.
//
// This package depends on no other yeet packages.
package config
