// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// FileName is the manifest's name at the root of a store path.
const FileName = "yeet-secrets.json"

// ErrInvalid wraps every parse and validation failure.
var ErrInvalid = errors.New("manifest: invalid secrets manifest")

//go:embed schema.json
var schemaSource []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	schema, err := jsonschema.NewCompiler().Compile(schemaSource)
	if err != nil {
		return nil, fmt.Errorf("manifest: compiling embedded schema: %w", err)
	}
	return schema, nil
})

// Entry says where one secret is installed.
type Entry struct {
	// Name is the file name inside a generation directory. It is not
	// the secret's name on the server.
	Name    string `json:"name"`
	Path    string `json:"path"`
	Mode    string `json:"mode"`
	Owner   string `json:"owner"`
	Group   string `json:"group"`
	Symlink bool   `json:"symlink,omitempty"`
}

// FileMode parses Mode as octal permission bits.
func (e Entry) FileMode() (fs.FileMode, error) {
	bits, err := strconv.ParseUint(e.Mode, 8, 32)
	if err != nil || bits > 0o7777 {
		return 0, fmt.Errorf("%w: mode %q is not octal permission bits", ErrInvalid, e.Mode)
	}
	return fs.FileMode(bits).Perm() | modeExtras(bits), nil
}

func modeExtras(bits uint64) fs.FileMode {
	var extras fs.FileMode
	if bits&0o4000 != 0 {
		extras |= fs.ModeSetuid
	}
	if bits&0o2000 != 0 {
		extras |= fs.ModeSetgid
	}
	if bits&0o1000 != 0 {
		extras |= fs.ModeSticky
	}
	return extras
}

// Manifest is a parsed secrets manifest keyed by server secret name.
type Manifest struct {
	Entries map[string]Entry

	// Digest is the blake3 hash of the canonical JSON form. The empty
	// manifest has the zero digest.
	Digest [32]byte
}

// Empty reports whether no secrets are required.
func (m *Manifest) Empty() bool { return len(m.Entries) == 0 }

// Names returns the required secret names, sorted.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Entries))
	for name := range m.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse strips JSONC comments and trailing commas from data, validates
// the result against the manifest schema and decodes it.
func Parse(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if result := schema.ValidateJSON(stripped); !result.IsValid() {
		return nil, fmt.Errorf("%w: schema validation failed: %v", ErrInvalid, result.Errors)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(stripped, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	fileNames := make(map[string]string, len(entries))
	for name, entry := range entries {
		if filepath.Base(entry.Name) != entry.Name || entry.Name == "." || entry.Name == ".." {
			return nil, fmt.Errorf("%w: secret %q has file name %q", ErrInvalid, name, entry.Name)
		}
		if previous, taken := fileNames[entry.Name]; taken {
			return nil, fmt.Errorf("%w: secrets %q and %q share file name %q", ErrInvalid, previous, name, entry.Name)
		}
		fileNames[entry.Name] = name
		if _, err := entry.FileMode(); err != nil {
			return nil, fmt.Errorf("secret %q: %w", name, err)
		}
	}

	manifest := &Manifest{Entries: entries}
	if len(entries) == 0 {
		return manifest, nil
	}
	canonical, err := jcs.Transform(stripped)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalizing: %v", ErrInvalid, err)
	}
	manifest.Digest = blake3.Sum256(canonical)
	return manifest, nil
}

// Load reads the manifest of a store path. A store path without one
// yields an empty manifest.
func Load(storePath string) (*Manifest, error) {
	path := filepath.Join(storePath, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	manifest, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}
