// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads the secrets manifest a deployable system ships
// at the root of its store path.
//
// The manifest (yeet-secrets.json) maps each secret name known to the
// server onto where the agent installs it:
//
//	{
//	  // comments and trailing commas are accepted
//	  "db-password": {
//	    "name": "db-password",
//	    "path": "/run/secrets/db-password",
//	    "mode": "0400",
//	    "owner": "postgres",
//	    "group": "postgres",
//	    "symlink": true,
//	  },
//	}
//
// Files are JSONC. They are validated against an embedded JSON Schema,
// then canonicalized (RFC 8785) so the digest recorded with a
// generation does not depend on formatting. A store path without a
// manifest requires no secrets.
package manifest
