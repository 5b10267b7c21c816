// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package hoststore

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/sqlitepool"
	"github.com/yeet-rs/yeet/lib/tag"
)

// Schema creates the hosts table.
const Schema = `
CREATE TABLE IF NOT EXISTS hosts (
	identity         TEXT PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	public_key       TEXT NOT NULL,
	tags             BLOB NOT NULL,
	store_path       TEXT NOT NULL DEFAULT '',
	substitutor      TEXT NOT NULL DEFAULT '',
	cache_public_key TEXT NOT NULL DEFAULT '',
	detached         INTEGER NOT NULL DEFAULT 0,
	enrolled_at      INTEGER NOT NULL
);
`

var (
	ErrNotFound = errors.New("hoststore: host not found")
	ErrExists   = errors.New("hoststore: host already enrolled")
	ErrNameUsed = errors.New("hoststore: host name already in use")
)

// Target is the system a host should run.
type Target struct {
	StorePath      string
	Substitutor    string
	CachePublicKey string
}

// IsZero reports whether no target has been set.
func (t Target) IsZero() bool { return t.StorePath == "" }

// Host is an enrolled machine.
type Host struct {
	Identity   identity.Identity
	Name       string
	PublicKey  ed25519.PublicKey
	Target     Target
	Detached   bool
	EnrolledAt time.Time
	tags       tag.Set
}

// Tags implements authorization.Resource.
func (h Host) Tags() tag.Set { return h.tags.Clone() }

// Store is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a host store over pool, which must have been opened
// with Schema.
func NewStore(pool *sqlitepool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, logger: logger, now: time.Now}
}

func validateName(name string) error {
	if name == "" || strings.TrimSpace(name) != name || strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("hoststore: invalid host name %q", name)
	}
	return nil
}

// Enroll registers a host under name with the given tags.
func (s *Store) Enroll(ctx context.Context, name string, publicKey ed25519.PublicKey, tags tag.Set) (Host, error) {
	if err := validateName(name); err != nil {
		return Host{}, err
	}
	if err := tag.ValidateResourceTags(tags); err != nil {
		return Host{}, err
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return Host{}, fmt.Errorf("hoststore: public key has %d bytes, want %d", len(publicKey), ed25519.PublicKeySize)
	}
	authorized, err := identity.AuthorizedKey(publicKey)
	if err != nil {
		return Host{}, err
	}
	encodedTags, err := codec.Marshal(tags)
	if err != nil {
		return Host{}, fmt.Errorf("hoststore: encoding tags: %w", err)
	}

	host := Host{
		Identity:   identity.FromPublicKey(publicKey),
		Name:       name,
		PublicKey:  publicKey,
		EnrolledAt: s.now().UTC(),
		tags:       tags.Clone(),
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Host{}, fmt.Errorf("hoststore: enroll: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO hosts (identity, name, public_key, tags, enrolled_at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{
			string(host.Identity), name, authorized, encodedTags, host.EnrolledAt.UnixNano(),
		}})
	if err != nil {
		return Host{}, constraintError(err, host.Identity, name)
	}

	s.logger.Info("host enrolled", "host", name, "identity", host.Identity.Short())
	return host, nil
}

func constraintError(err error, who identity.Identity, name string) error {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintPrimaryKey:
		return fmt.Errorf("%w: %s", ErrExists, who.Short())
	case sqlite.ResultConstraintUnique:
		return fmt.Errorf("%w: %q", ErrNameUsed, name)
	}
	return fmt.Errorf("hoststore: %w", err)
}

const selectHost = `SELECT identity, name, public_key, tags, store_path, substitutor,
	cache_public_key, detached, enrolled_at FROM hosts`

func scanHost(stmt *sqlite.Stmt) (Host, error) {
	publicKey, err := identity.ParseAuthorizedKey(stmt.ColumnText(2))
	if err != nil {
		return Host{}, fmt.Errorf("host %s: %w", stmt.ColumnText(1), err)
	}
	host := Host{
		Identity:  identity.Identity(stmt.ColumnText(0)),
		Name:      stmt.ColumnText(1),
		PublicKey: publicKey,
		Target: Target{
			StorePath:      stmt.ColumnText(4),
			Substitutor:    stmt.ColumnText(5),
			CachePublicKey: stmt.ColumnText(6),
		},
		Detached:   stmt.ColumnInt64(7) != 0,
		EnrolledAt: time.Unix(0, stmt.ColumnInt64(8)).UTC(),
	}
	tags := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, tags)
	if err := codec.Unmarshal(tags, &host.tags); err != nil {
		return Host{}, fmt.Errorf("host %s tags: %w", host.Name, err)
	}
	return host, nil
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]Host, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("hoststore: %w", err)
	}
	defer s.pool.Put(conn)

	var hosts []Host
	err = sqlitex.Execute(conn, selectHost+" "+where, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			host, err := scanHost(stmt)
			if err != nil {
				return err
			}
			hosts = append(hosts, host)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hoststore: querying hosts: %w", err)
	}
	return hosts, nil
}

func (s *Store) one(ctx context.Context, label, where string, args ...any) (Host, error) {
	hosts, err := s.query(ctx, where, args...)
	if err != nil {
		return Host{}, err
	}
	if len(hosts) == 0 {
		return Host{}, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	return hosts[0], nil
}

// Get returns the host with the given identity.
func (s *Store) Get(ctx context.Context, who identity.Identity) (Host, error) {
	return s.one(ctx, who.Short(), "WHERE identity = ?", string(who))
}

// GetByName returns the host with the given display name.
func (s *Store) GetByName(ctx context.Context, name string) (Host, error) {
	return s.one(ctx, name, "WHERE name = ?", name)
}

// List returns every host sorted by name.
func (s *Store) List(ctx context.Context) ([]Host, error) {
	return s.query(ctx, "ORDER BY name")
}

func (s *Store) update(ctx context.Context, who identity.Identity, set string, args ...any) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("hoststore: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "UPDATE hosts SET "+set+" WHERE identity = ?", &sqlitex.ExecOptions{
		Args: append(args, string(who)),
	})
	if err != nil {
		return err
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, who.Short())
	}
	return nil
}

// Rename changes a host's display name.
func (s *Store) Rename(ctx context.Context, who identity.Identity, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.update(ctx, who, "name = ?", name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return constraintError(err, who, name)
	}
	s.logger.Info("host renamed", "identity", who.Short(), "name", name)
	return nil
}

// SetTags replaces a host's tags.
func (s *Store) SetTags(ctx context.Context, who identity.Identity, tags tag.Set) error {
	if err := tag.ValidateResourceTags(tags); err != nil {
		return err
	}
	encoded, err := codec.Marshal(tags)
	if err != nil {
		return fmt.Errorf("hoststore: encoding tags: %w", err)
	}
	if err := s.update(ctx, who, "tags = ?", encoded); err != nil {
		return err
	}
	s.logger.Info("host tags updated", "identity", who.Short(), "tags", tags.Len())
	return nil
}

// SetTarget records the system the host should converge to.
func (s *Store) SetTarget(ctx context.Context, who identity.Identity, target Target) error {
	if target.StorePath == "" {
		return fmt.Errorf("hoststore: target store path must not be empty")
	}
	err := s.update(ctx, who, "store_path = ?, substitutor = ?, cache_public_key = ?",
		target.StorePath, target.Substitutor, target.CachePublicKey)
	if err != nil {
		return err
	}
	s.logger.Info("host target updated", "identity", who.Short(), "store_path", target.StorePath)
	return nil
}

// SetDetached sets or clears the detach flag. A detached host keeps
// its current system and ignores targets until re-attached.
func (s *Store) SetDetached(ctx context.Context, who identity.Identity, detached bool) error {
	value := 0
	if detached {
		value = 1
	}
	if err := s.update(ctx, who, "detached = ?", value); err != nil {
		return err
	}
	s.logger.Info("host detach flag updated", "identity", who.Short(), "detached", detached)
	return nil
}

// Remove deletes a host. Its identity can no longer open sessions.
func (s *Store) Remove(ctx context.Context, who identity.Identity) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("hoststore: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, "DELETE FROM hosts WHERE identity = ?", &sqlitex.ExecOptions{
		Args: []any{string(who)},
	}); err != nil {
		return fmt.Errorf("hoststore: removing host: %w", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, who.Short())
	}
	s.logger.Info("host removed", "identity", who.Short())
	return nil
}
