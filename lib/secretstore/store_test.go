// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package secretstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/secret"
	"github.com/yeet-rs/yeet/lib/sqlitepool"
	"github.com/yeet-rs/yeet/lib/tag"
)

var (
	prod = tag.Specific("prod")
	db   = tag.Specific("db")
)

func newTestStore(t *testing.T) (*Store, *sealed.Keypair) {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:    filepath.Join(t.TempDir(), "secrets.db"),
		Schemas: []string{Schema},
	})
	if err != nil {
		t.Fatalf("sqlitepool.Open() error: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })

	store, err := NewStore(pool, keypair, nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store, keypair
}

func mustBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("secret.NewFromBytes() error: %v", err)
	}
	return buffer
}

func mustPut(t *testing.T, store *Store, name, value string, tags tag.Set) Secret {
	t.Helper()
	result, err := store.Put(context.Background(), name, mustBuffer(t, value), tags)
	if err != nil {
		t.Fatalf("Put(%q) error: %v", name, err)
	}
	return result
}

func TestPutEncryptsAtRest(t *testing.T) {
	store, keypair := newTestStore(t)
	ctx := context.Background()

	plaintext := mustBuffer(t, "hunter2")
	if _, err := store.Put(ctx, "db-password", plaintext, tag.NewSet(prod)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	ciphertext, err := store.GetCiphertext(ctx, "db-password")
	if err != nil {
		t.Fatalf("GetCiphertext() error: %v", err)
	}
	if bytes.Contains(ciphertext, []byte("hunter2")) {
		t.Fatal("stored ciphertext contains the plaintext")
	}
	decrypted, err := sealed.Decrypt(ciphertext, keypair)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	defer decrypted.Close()
	if decrypted.String() != "hunter2" {
		t.Errorf("decrypted = %q, want %q", decrypted.String(), "hunter2")
	}

	// Bytes panics on a closed buffer; Put must have closed it.
	defer func() {
		if recover() == nil {
			t.Error("Put did not close the plaintext buffer")
		}
	}()
	plaintext.Bytes()
}

func TestPutVersionsAndKeepsTags(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := mustPut(t, store, "token", "a", tag.NewSet(prod))
	if first.Version != 1 {
		t.Errorf("first Version = %d, want 1", first.Version)
	}
	second := mustPut(t, store, "token", "b", nil)
	if second.Version != 2 {
		t.Errorf("second Version = %d, want 2", second.Version)
	}
	got, err := store.Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Tags().Equal(tag.NewSet(prod)) {
		t.Errorf("Tags() = %v, want {prod}", got.Tags().Tags())
	}
}

func TestPutRejectsBadTags(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "new", mustBuffer(t, "x"), nil); !errors.Is(err, tag.ErrNoTags) {
		t.Errorf("Put(no tags) error = %v, want tag.ErrNoTags", err)
	}
	if _, err := store.Put(ctx, "new", mustBuffer(t, "x"), tag.NewSet(tag.Any())); !errors.Is(err, tag.ErrWildcardOnResource) {
		t.Errorf("Put(wildcard) error = %v, want tag.ErrWildcardOnResource", err)
	}
	if _, err := store.Put(ctx, " padded", mustBuffer(t, "x"), tag.NewSet(prod)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Put(padded name) error = %v, want ErrInvalidName", err)
	}
	if _, err := store.Get(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected Put left a row behind: %v", err)
	}
}

func TestPutSealed(t *testing.T) {
	store, keypair := newTestStore(t)
	ctx := context.Background()

	recipient, err := sealed.ParseRecipient(keypair.PublicKey)
	if err != nil {
		t.Fatalf("ParseRecipient() error: %v", err)
	}
	ciphertext, err := sealed.Encrypt([]byte("pre-sealed"), recipient)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := store.PutSealed(ctx, "sealed", ciphertext, tag.NewSet(prod)); err != nil {
		t.Fatalf("PutSealed() error: %v", err)
	}

	other, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer other.Close()
	otherRecipient, err := sealed.ParseRecipient(other.PublicKey)
	if err != nil {
		t.Fatalf("ParseRecipient() error: %v", err)
	}
	wrong, err := sealed.Encrypt([]byte("wrong key"), otherRecipient)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := store.PutSealed(ctx, "wrong", wrong, tag.NewSet(prod)); !errors.Is(err, sealed.ErrDecryptionFailure) {
		t.Errorf("PutSealed(wrong key) error = %v, want ErrDecryptionFailure", err)
	}
}

func TestListFiltersByTags(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	mustPut(t, store, "b", "1", tag.NewSet(prod))
	mustPut(t, store, "a", "2", tag.NewSet(prod, db))
	mustPut(t, store, "c", "3", tag.NewSet(db))

	tests := []struct {
		name   string
		caller tag.Set
		want   []string
	}{
		{"prod", tag.NewSet(prod), []string{"a", "b"}},
		{"db", tag.NewSet(db), []string{"a", "c"}},
		{"wildcard", tag.NewSet(tag.Any()), []string{"a", "b", "c"}},
		{"nothing", tag.NewSet(tag.Specific("other")), nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := store.List(ctx, test.caller)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if len(got) != len(test.want) {
				t.Fatalf("List() = %v, want %v", got, test.want)
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Errorf("List()[%d] = %q, want %q", i, got[i], test.want[i])
				}
			}
		})
	}
}

func TestRenameRemoveSetTags(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	mustPut(t, store, "old", "v", tag.NewSet(prod))
	mustPut(t, store, "taken", "v", tag.NewSet(prod))

	if err := store.Rename(ctx, "old", "taken"); !errors.Is(err, ErrExists) {
		t.Errorf("Rename(onto existing) error = %v, want ErrExists", err)
	}
	if err := store.Rename(ctx, "old", "new"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(old) error = %v, want ErrNotFound", err)
	}
	if err := store.Rename(ctx, "missing", "other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.SetTags(ctx, "new", tag.NewSet(db)); err != nil {
		t.Fatalf("SetTags() error: %v", err)
	}
	got, err := store.Get(ctx, "new")
	if err != nil {
		t.Fatalf("Get(new) error: %v", err)
	}
	if !got.Tags().Equal(tag.NewSet(db)) {
		t.Errorf("Tags() = %v, want {db}", got.Tags().Tags())
	}
	if err := store.SetTags(ctx, "new", nil); !errors.Is(err, tag.ErrNoTags) {
		t.Errorf("SetTags(empty) error = %v, want tag.ErrNoTags", err)
	}

	if err := store.Remove(ctx, "new"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := store.Remove(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetCiphertext(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCiphertext(removed) error = %v, want ErrNotFound", err)
	}
}
