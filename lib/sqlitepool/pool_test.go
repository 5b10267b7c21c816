// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yeet-rs/yeet/lib/sqlitepool"
)

const testSchema = `CREATE TABLE IF NOT EXISTS items (name TEXT PRIMARY KEY, value INTEGER NOT NULL);`

func TestOpenAppliesPragmasAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 2, Schemas: []string{testSchema}})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() error: %v", err)
	}
	defer pool.Put(conn)

	pragmas := map[string]string{
		"PRAGMA journal_mode":  "wal",
		"PRAGMA synchronous":   "2",
		"PRAGMA secure_delete": "1",
	}
	for pragma, want := range pragmas {
		var got string
		err := sqlitex.Execute(conn, pragma, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				got = stmt.ColumnText(0)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("%s error: %v", pragma, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", pragma, got, want)
		}
	}

	if err := sqlitex.Execute(conn, "INSERT INTO items (name, value) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"a", 1},
	}); err != nil {
		t.Fatalf("INSERT error: %v", err)
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for range 2 {
		pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Schemas: []string{testSchema}})
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		if err := pool.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
	}
}

func TestOpenRejectsInvalidPaths(t *testing.T) {
	for _, path := range []string{"", ":memory:"} {
		if _, err := sqlitepool.Open(sqlitepool.Config{Path: path}); err == nil {
			t.Errorf("Open(%q) succeeded, want error", path)
		}
	}
}

func TestOpenRejectsBadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	if _, err := sqlitepool.Open(sqlitepool.Config{Path: path, Schemas: []string{"CREATE TABLE ("}}); err == nil {
		t.Fatal("Open() with invalid schema succeeded")
	}
}
