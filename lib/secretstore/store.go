// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package secretstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"filippo.io/age"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/secret"
	"github.com/yeet-rs/yeet/lib/sqlitepool"
	"github.com/yeet-rs/yeet/lib/tag"
)

// Schema creates the secrets table.
const Schema = `
CREATE TABLE IF NOT EXISTS secrets (
	name       TEXT PRIMARY KEY,
	ciphertext BLOB NOT NULL,
	tags       BLOB NOT NULL,
	version    INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

var (
	ErrNotFound    = errors.New("secretstore: secret not found")
	ErrExists      = errors.New("secretstore: secret already exists")
	ErrInvalidName = errors.New("secretstore: invalid secret name")
)

// Secret is the metadata of a stored secret.
type Secret struct {
	Name      string
	Version   int64
	UpdatedAt time.Time
	tags      tag.Set
}

// Tags implements authorization.Resource.
func (s Secret) Tags() tag.Set { return s.tags.Clone() }

// Store is safe for concurrent use; SQLite serializes writers.
type Store struct {
	pool      *sqlitepool.Pool
	keypair   *sealed.Keypair
	recipient age.Recipient
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore returns a store encrypting to keypair. The keypair is
// borrowed; it must outlive the store.
func NewStore(pool *sqlitepool.Pool, keypair *sealed.Keypair, logger *slog.Logger) (*Store, error) {
	recipient, err := sealed.ParseRecipient(keypair.PublicKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		pool:      pool,
		keypair:   keypair,
		recipient: recipient,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// ValidateName rejects empty names and names with control characters
// or surrounding whitespace.
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidName, name)
		}
	}
	return nil
}

// Put encrypts plaintext and stores it under name, creating the secret
// or bumping its version. plaintext is closed before Put returns,
// whatever the outcome. An update with empty tags keeps the existing
// tags; a create requires tags.
func (s *Store) Put(ctx context.Context, name string, plaintext *secret.Buffer, tags tag.Set) (Secret, error) {
	defer plaintext.Close()
	if err := ValidateName(name); err != nil {
		return Secret{}, err
	}
	ciphertext, err := sealed.Encrypt(plaintext.Bytes(), s.recipient)
	if err != nil {
		return Secret{}, err
	}
	plaintext.Close()
	return s.write(ctx, name, ciphertext, tags)
}

// PutSealed stores a ciphertext the administrator already encrypted to
// the server's public key. The ciphertext is test-decrypted first so a
// secret sealed to the wrong key is rejected up front.
func (s *Store) PutSealed(ctx context.Context, name string, ciphertext []byte, tags tag.Set) (Secret, error) {
	if err := ValidateName(name); err != nil {
		return Secret{}, err
	}
	plaintext, err := sealed.Decrypt(ciphertext, s.keypair)
	if err != nil {
		return Secret{}, err
	}
	plaintext.Close()
	return s.write(ctx, name, ciphertext, tags)
}

func (s *Store) write(ctx context.Context, name string, ciphertext []byte, tags tag.Set) (result Secret, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Secret{}, fmt.Errorf("secretstore: put: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Secret{}, fmt.Errorf("secretstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	existing, found, err := getSecret(conn, name)
	if err != nil {
		return Secret{}, err
	}
	if tags.Len() == 0 && found {
		tags = existing.tags
	}
	if err := tag.ValidateResourceTags(tags); err != nil {
		return Secret{}, err
	}
	encodedTags, err := codec.Marshal(tags)
	if err != nil {
		return Secret{}, fmt.Errorf("secretstore: encoding tags: %w", err)
	}

	result = Secret{
		Name:      name,
		Version:   existing.Version + 1,
		UpdatedAt: s.now().UTC(),
		tags:      tags.Clone(),
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO secrets (name, ciphertext, tags, version, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			tags = excluded.tags,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{name, ciphertext, encodedTags, result.Version, result.UpdatedAt.UnixNano()}})
	if err != nil {
		return Secret{}, fmt.Errorf("secretstore: writing %q: %w", name, err)
	}

	s.logger.Info("secret stored", "secret", name, "version", result.Version, "tags", tags.Len())
	return result, nil
}

// GetCiphertext returns the at-rest ciphertext of name.
func (s *Store) GetCiphertext(ctx context.Context, name string) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretstore: get: %w", err)
	}
	defer s.pool.Put(conn)

	var ciphertext []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT ciphertext FROM secrets WHERE name = ?", &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ciphertext = columnBlob(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("secretstore: reading %q: %w", name, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return ciphertext, nil
}

// Get returns the metadata of name.
func (s *Store) Get(ctx context.Context, name string) (Secret, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Secret{}, fmt.Errorf("secretstore: get: %w", err)
	}
	defer s.pool.Put(conn)

	result, found, err := getSecret(conn, name)
	if err != nil {
		return Secret{}, err
	}
	if !found {
		return Secret{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return result, nil
}

func getSecret(conn *sqlite.Conn, name string) (Secret, bool, error) {
	var result Secret
	found := false
	err := sqlitex.Execute(conn, "SELECT name, tags, version, updated_at FROM secrets WHERE name = ?", &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var err error
			result, err = scanSecret(stmt)
			found = err == nil
			return err
		},
	})
	if err != nil {
		return Secret{}, false, fmt.Errorf("secretstore: reading %q: %w", name, err)
	}
	return result, found, nil
}

func scanSecret(stmt *sqlite.Stmt) (Secret, error) {
	result := Secret{
		Name:      stmt.ColumnText(0),
		Version:   stmt.ColumnInt64(2),
		UpdatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
	}
	if err := codec.Unmarshal(columnBlob(stmt, 1), &result.tags); err != nil {
		return Secret{}, fmt.Errorf("tags of %q: %w", result.Name, err)
	}
	return result, nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

// All returns the metadata of every secret sorted by name.
func (s *Store) All(ctx context.Context) ([]Secret, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretstore: list: %w", err)
	}
	defer s.pool.Put(conn)

	var secrets []Secret
	err = sqlitex.Execute(conn, "SELECT name, tags, version, updated_at FROM secrets ORDER BY name", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result, err := scanSecret(stmt)
			if err != nil {
				return err
			}
			secrets = append(secrets, result)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("secretstore: listing: %w", err)
	}
	return secrets, nil
}

// List returns the names of secrets whose tags intersect callerTags,
// sorted. Request handlers filter through authorization.Filter instead.
func (s *Store) List(ctx context.Context, callerTags tag.Set) ([]string, error) {
	secrets, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, candidate := range secrets {
		if tag.Intersects(callerTags, candidate.tags) {
			names = append(names, candidate.Name)
		}
	}
	return names, nil
}

// Remove deletes name.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.modify(ctx, name, "DELETE FROM secrets WHERE name = ?", []any{name}, "secret removed")
}

// Rename moves a secret to a new name, keeping its ciphertext, tags and
// version.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	if err := ValidateName(to); err != nil {
		return err
	}
	if _, err := s.Get(ctx, to); err == nil {
		return fmt.Errorf("%w: %q", ErrExists, to)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	err := s.modify(ctx, from, "UPDATE secrets SET name = ? WHERE name = ?", []any{to, from}, "secret renamed")
	if err != nil && sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
		return fmt.Errorf("%w: %q", ErrExists, to)
	}
	return err
}

// SetTags replaces the tags of name.
func (s *Store) SetTags(ctx context.Context, name string, tags tag.Set) error {
	if err := tag.ValidateResourceTags(tags); err != nil {
		return err
	}
	encoded, err := codec.Marshal(tags)
	if err != nil {
		return fmt.Errorf("secretstore: encoding tags: %w", err)
	}
	return s.modify(ctx, name, "UPDATE secrets SET tags = ? WHERE name = ?", []any{encoded, name}, "secret tags updated")
}

// modify runs a single-row statement and maps "no row changed" to
// ErrNotFound.
func (s *Store) modify(ctx context.Context, name, query string, args []any, message string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("secretstore: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("secretstore: updating %q: %w", name, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.logger.Info(message, "secret", name)
	return nil
}
