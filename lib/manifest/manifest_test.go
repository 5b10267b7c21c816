// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sample = `{
  // installed for the database
  "db-password": {
    "name": "db-password",
    "path": "/run/secrets/db-password",
    "mode": "0400",
    "owner": "postgres",
    "group": "postgres",
    "symlink": true,
  },
  "netrc": {"name": "netrc", "path": "/etc/nix/netrc", "mode": "600", "owner": "root", "group": "root"},
}`

func TestParse(t *testing.T) {
	manifest, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got, want := manifest.Names(), []string{"db-password", "netrc"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	entry := manifest.Entries["db-password"]
	if !entry.Symlink || entry.Owner != "postgres" || entry.Path != "/run/secrets/db-password" {
		t.Errorf("db-password entry = %+v", entry)
	}
	mode, err := entry.FileMode()
	if err != nil {
		t.Fatalf("FileMode() error: %v", err)
	}
	if mode != 0o400 {
		t.Errorf("FileMode() = %v, want %v", mode, fs.FileMode(0o400))
	}
	if manifest.Digest == ([32]byte{}) {
		t.Error("Digest is zero for a non-empty manifest")
	}
}

func TestDigestIgnoresFormatting(t *testing.T) {
	first, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	compact := `{"netrc":{"group":"root","mode":"600","name":"netrc","owner":"root","path":"/etc/nix/netrc"},` +
		`"db-password":{"symlink":true,"group":"postgres","owner":"postgres","mode":"0400","path":"/run/secrets/db-password","name":"db-password"}}`
	second, err := Parse([]byte(compact))
	if err != nil {
		t.Fatalf("Parse(compact) error: %v", err)
	}
	if first.Digest != second.Digest {
		t.Error("equivalent manifests have different digests")
	}

	changed := `{"netrc":{"group":"root","mode":"644","name":"netrc","owner":"root","path":"/etc/nix/netrc"}}`
	third, err := Parse([]byte(changed))
	if err != nil {
		t.Fatalf("Parse(changed) error: %v", err)
	}
	if third.Digest == first.Digest {
		t.Error("different manifests share a digest")
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"not an object":     `[]`,
		"missing path":      `{"a": {"name": "a", "mode": "400", "owner": "root", "group": "root"}}`,
		"relative path":     `{"a": {"name": "a", "path": "run/a", "mode": "400", "owner": "root", "group": "root"}}`,
		"file name escapes": `{"a": {"name": "../a", "path": "/run/a", "mode": "400", "owner": "root", "group": "root"}}`,
		"dot file name":     `{"a": {"name": "..", "path": "/run/a", "mode": "400", "owner": "root", "group": "root"}}`,
		"decimal mode":      `{"a": {"name": "a", "path": "/run/a", "mode": "999", "owner": "root", "group": "root"}}`,
		"unknown field":     `{"a": {"name": "a", "path": "/run/a", "mode": "400", "owner": "root", "group": "root", "extra": 1}}`,
		"shared file name": `{"a": {"name": "x", "path": "/run/a", "mode": "400", "owner": "root", "group": "root"},
		                      "b": {"name": "x", "path": "/run/b", "mode": "400", "owner": "root", "group": "root"}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(input)); !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	storePath := t.TempDir()
	manifest, err := Load(storePath)
	if err != nil {
		t.Fatalf("Load() without manifest error: %v", err)
	}
	if !manifest.Empty() || manifest.Digest != ([32]byte{}) {
		t.Errorf("Load() without manifest = %+v, want empty", manifest)
	}

	if err := os.WriteFile(filepath.Join(storePath, FileName), []byte(sample), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	manifest, err = Load(storePath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(manifest.Entries) != 2 {
		t.Errorf("Load() entries = %d, want 2", len(manifest.Entries))
	}
}
