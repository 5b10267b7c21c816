// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/sqlitepool"
	"github.com/yeet-rs/yeet/lib/tag"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS tag_definitions (
	token      TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY,
	identity   TEXT NOT NULL,
	actions    BLOB NOT NULL,
	scope      BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS policies_by_identity ON policies(identity);
`

var (
	// ErrUnauthorized is the single deny outcome.
	ErrUnauthorized = errors.New("authorization: unauthorized")

	ErrEmptyScope = errors.New("authorization: policy scope must not be empty")
	ErrNoActions  = errors.New("authorization: policy must grant at least one action")
	ErrUnknownTag = errors.New("authorization: tag is not defined")
	ErrTagExists  = errors.New("authorization: a tag with this name already exists")
)

// Store is the durable policy store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	index *index
}

// NewStore loads every policy and tag definition from pool. The pool
// must have been opened with Schema.
func NewStore(ctx context.Context, pool *sqlitepool.Pool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store := &Store{
		pool:   pool,
		logger: logger,
		now:    time.Now,
		index:  newIndex(),
	}
	if err := store.load(ctx); err != nil {
		return nil, err
	}
	logger.Info("policy store loaded",
		"policies", len(store.index.byID),
		"tags", len(store.index.tags),
	)
	return store, nil
}

func (s *Store) load(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: load: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "SELECT token, name, created_at FROM tag_definitions", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			t := tag.Specific(stmt.ColumnText(0))
			s.index.tags[t] = Definition{
				Tag:       t,
				Name:      stmt.ColumnText(1),
				CreatedAt: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("policy store: loading tags: %w", err)
	}

	err = sqlitex.Execute(conn, "SELECT id, identity, actions, scope, created_at FROM policies", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			policy, err := scanPolicy(stmt)
			if err != nil {
				return err
			}
			s.index.insert(policy)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("policy store: loading policies: %w", err)
	}
	return nil
}

func scanPolicy(stmt *sqlite.Stmt) (Policy, error) {
	id, err := uuid.Parse(stmt.ColumnText(0))
	if err != nil {
		return Policy{}, fmt.Errorf("policy id %q: %w", stmt.ColumnText(0), err)
	}
	policy := Policy{
		ID:        id,
		Identity:  identity.Identity(stmt.ColumnText(1)),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
	}
	if err := codec.Unmarshal(columnBlob(stmt, 2), &policy.Actions); err != nil {
		return Policy{}, fmt.Errorf("policy %s actions: %w", id, err)
	}
	if err := codec.Unmarshal(columnBlob(stmt, 3), &policy.Scope); err != nil {
		return Policy{}, fmt.Errorf("policy %s scope: %w", id, err)
	}
	return policy, nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

// Grant appends a new policy for who. It never merges with an
// existing policy, so each grant can be revoked exactly.
func (s *Store) Grant(ctx context.Context, who identity.Identity, actions []Action, scope tag.Set) (Policy, error) {
	if scope.Len() == 0 {
		return Policy{}, ErrEmptyScope
	}
	unique := make([]Action, 0, len(actions))
	seen := make(map[Action]bool, len(actions))
	for _, action := range actions {
		if action.IsZero() {
			return Policy{}, fmt.Errorf("authorization: zero action in grant")
		}
		if !seen[action] {
			seen[action] = true
			unique = append(unique, action)
		}
	}
	if len(unique) == 0 {
		return Policy{}, ErrNoActions
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for t := range scope {
		if t.IsAny() {
			continue
		}
		if _, defined := s.index.tags[t]; !defined {
			return Policy{}, fmt.Errorf("%w: %s", ErrUnknownTag, t)
		}
	}

	policy := Policy{
		ID:        uuid.New(),
		Identity:  who,
		Actions:   unique,
		Scope:     scope.Clone(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.insertPolicy(ctx, policy); err != nil {
		return Policy{}, err
	}
	s.index.insert(policy)

	s.logger.Info("policy granted",
		"policy", policy.ID,
		"identity", who,
		"actions", len(unique),
		"scope", scope.Len(),
	)
	return clonePolicy(policy), nil
}

func (s *Store) insertPolicy(ctx context.Context, policy Policy) (err error) {
	actions, err := codec.Marshal(policy.Actions)
	if err != nil {
		return fmt.Errorf("policy store: encoding actions: %w", err)
	}
	scope, err := codec.Marshal(policy.Scope)
	if err != nil {
		return fmt.Errorf("policy store: encoding scope: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: grant: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("policy store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return sqlitex.Execute(conn,
		"INSERT INTO policies (id, identity, actions, scope, created_at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{
			policy.ID.String(),
			string(policy.Identity),
			actions,
			scope,
			policy.CreatedAt.UnixNano(),
		}})
}

// Revoke removes the policy with id. Revoking an unknown or already
// revoked policy is a no-op.
func (s *Store) Revoke(ctx context.Context, id uuid.UUID) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.byID[id]; !ok {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: revoke: %w", err)
	}
	defer s.pool.Put(conn)

	if err := s.deletePolicies(conn, []uuid.UUID{id}); err != nil {
		return err
	}
	s.index.remove(id)
	s.logger.Info("policy revoked", "policy", id)
	return nil
}

func (s *Store) deletePolicies(conn *sqlite.Conn, ids []uuid.UUID) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("policy store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, id := range ids {
		if err := sqlitex.Execute(conn, "DELETE FROM policies WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{id.String()},
		}); err != nil {
			return fmt.Errorf("policy store: deleting %s: %w", id, err)
		}
	}
	return nil
}

// AuthorizedScope returns the union of the scopes of every policy of
// who that covers action. The result is empty, never an error, when no
// policy applies.
func (s *Store) AuthorizedScope(who identity.Identity, action Action) tag.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.scope(who, action)
}

// CreatableScope returns the tags who may stamp onto a new resource of
// the given kind. The wildcard is never returned: a scope holding it
// expands to every defined tag. An empty result means creation is not
// authorized.
func (s *Store) CreatableScope(who identity.Identity, kind ResourceKind) tag.Set {
	action, ok := CreateActionFor(kind)
	if !ok {
		return tag.NewSet()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := s.index.scope(who, action)
	if !scope.HasAny() {
		return scope
	}
	creatable := tag.NewSet()
	for t := range s.index.tags {
		creatable.Add(t)
	}
	return creatable
}

// Policy returns the policy with id.
func (s *Store) Policy(id uuid.UUID) (Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.index.byID[id]
	if !ok {
		return Policy{}, false
	}
	return clonePolicy(policy), true
}

// Policies returns the policies bound to who, oldest first.
func (s *Store) Policies(who identity.Identity) []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.policiesOf(who)
}

// AllPolicies returns every policy, oldest first.
func (s *Store) AllPolicies() []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.allPolicies()
}

// Bootstrap grants AnyAction over the wildcard scope to who when the
// store holds no policies at all. Reports whether it granted.
func (s *Store) Bootstrap(ctx context.Context, who identity.Identity) (bool, error) {
	s.mu.RLock()
	empty := len(s.index.byID) == 0
	s.mu.RUnlock()
	if !empty {
		return false, nil
	}
	if _, err := s.Grant(ctx, who, []Action{AnyAction}, tag.NewSet(tag.Any())); err != nil {
		return false, fmt.Errorf("bootstrapping administrator: %w", err)
	}
	s.logger.Warn("granted initial administrator full access", "identity", who)
	return true, nil
}

// CreateTag mints a new tag with a fresh UUID token.
func (s *Store) CreateTag(ctx context.Context, name string) (definition Definition, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Definition{}, fmt.Errorf("authorization: tag name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.index.tags {
		if existing.Name == name {
			return Definition{}, fmt.Errorf("%w: %q", ErrTagExists, name)
		}
	}

	definition = Definition{
		Tag:       tag.Specific(uuid.NewString()),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Definition{}, fmt.Errorf("policy store: create tag: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn,
		"INSERT INTO tag_definitions (token, name, created_at) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{definition.Tag.Token(), name, definition.CreatedAt.UnixNano()}},
	); err != nil {
		return Definition{}, fmt.Errorf("policy store: inserting tag: %w", err)
	}
	s.index.tags[definition.Tag] = definition

	s.logger.Info("tag created", "tag", definition.Tag.Token(), "name", name)
	return definition, nil
}

// DeleteTag removes a tag definition and strips the tag from every
// policy scope. A policy left with an empty scope is deleted. Deleting
// an unknown tag is a no-op. Resources keep the stale token; no policy
// can reference it any more.
func (s *Store) DeleteTag(ctx context.Context, t tag.Tag) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.tags[t]; !ok {
		return nil
	}

	type rewrite struct {
		policy Policy
		scope  []byte
	}
	var rewrites []rewrite
	var emptied []uuid.UUID
	for _, policy := range s.index.byID {
		if !policy.Scope.Contains(t) {
			continue
		}
		remaining := policy.Scope.Clone()
		remaining.Remove(t)
		if remaining.Len() == 0 {
			emptied = append(emptied, policy.ID)
			continue
		}
		encoded, err := codec.Marshal(remaining)
		if err != nil {
			return fmt.Errorf("policy store: encoding scope: %w", err)
		}
		policy.Scope = remaining
		rewrites = append(rewrites, rewrite{policy: policy, scope: encoded})
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: delete tag: %w", err)
	}
	defer s.pool.Put(conn)

	err = func() (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("policy store: begin transaction: %w", err)
		}
		defer endTransaction(&err)

		if err := sqlitex.Execute(conn, "DELETE FROM tag_definitions WHERE token = ?", &sqlitex.ExecOptions{
			Args: []any{t.Token()},
		}); err != nil {
			return err
		}
		for _, entry := range rewrites {
			if err := sqlitex.Execute(conn, "UPDATE policies SET scope = ? WHERE id = ?", &sqlitex.ExecOptions{
				Args: []any{entry.scope, entry.policy.ID.String()},
			}); err != nil {
				return err
			}
		}
		for _, id := range emptied {
			if err := sqlitex.Execute(conn, "DELETE FROM policies WHERE id = ?", &sqlitex.ExecOptions{
				Args: []any{id.String()},
			}); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		return fmt.Errorf("policy store: deleting tag %s: %w", t, err)
	}

	delete(s.index.tags, t)
	for _, entry := range rewrites {
		s.index.remove(entry.policy.ID)
		s.index.insert(entry.policy)
	}
	for _, id := range emptied {
		s.index.remove(id)
	}

	s.logger.Info("tag deleted",
		"tag", t.Token(),
		"policies_narrowed", len(rewrites),
		"policies_removed", len(emptied),
	)
	return nil
}

// Tags returns every tag definition sorted by name.
func (s *Store) Tags() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.definitions()
}

// TagByName looks up a definition by its display name.
func (s *Store) TagByName(name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, definition := range s.index.tags {
		if definition.Name == name {
			return definition, true
		}
	}
	return Definition{}, false
}

// RequireDefined returns ErrUnknownTag unless every specific tag in set
// is defined.
func (s *Store) RequireDefined(set tag.Set) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t := range set {
		if t.IsAny() {
			continue
		}
		if _, ok := s.index.tags[t]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTag, t)
		}
	}
	return nil
}
