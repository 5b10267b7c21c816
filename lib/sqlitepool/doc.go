// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the server's SQLite database.
//
// The server's SQLite file is the source of truth for policies, tag
// definitions, secrets and hosts, so durability wins over write
// throughput: every connection runs in WAL mode with synchronous=FULL.
// The pool wraps zombiezen.com/go/sqlite/sqlitex and exposes its
// connection type directly. Callers write SQL with sqlitex.Execute and
// wrap mutations in sqlitex.ImmediateTransaction, which gives the
// single-writer discipline the stores rely on.
//
// Each store package owns a schema fragment. [Open] applies every
// fragment passed in [Config.Schemas] once, inside one transaction,
// before the pool is handed out:
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:    filepath.Join(stateDir, "yeet.db"),
//	    Logger:  logger,
//	    Schemas: []string{authorization.Schema, secretstore.Schema},
//	})
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
