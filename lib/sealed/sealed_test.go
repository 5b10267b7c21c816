// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"

	"github.com/yeet-rs/yeet/lib/secret"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func mustRecipient(t *testing.T, keypair *Keypair) age.Recipient {
	t.Helper()
	recipient, err := ParseRecipient(keypair.PublicKey)
	if err != nil {
		t.Fatalf("ParseRecipient() error: %v", err)
	}
	return recipient
}

func TestGenerateKeypair(t *testing.T) {
	keypair := mustKeypair(t)
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey does not have the AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
	if other := mustKeypair(t); other.PublicKey == keypair.PublicKey {
		t.Error("two generated keypairs share a public key")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	keypair := mustKeypair(t)
	for _, plaintext := range [][]byte{[]byte("machine example.org login a password b\n"), {}} {
		ciphertext, err := Encrypt(plaintext, mustRecipient(t, keypair))
		if err != nil {
			t.Fatalf("Encrypt() error: %v", err)
		}
		decrypted, err := Decrypt(ciphertext, keypair)
		if err != nil {
			t.Fatalf("Decrypt() error: %v", err)
		}
		if !bytes.Equal(decrypted.Bytes(), plaintext) {
			t.Errorf("Decrypt() = %q, want %q", decrypted.Bytes(), plaintext)
		}
		decrypted.Close()
	}
}

func TestDecryptWrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), mustRecipient(t, mustKeypair(t)))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := Decrypt(ciphertext, mustKeypair(t)); !errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("Decrypt(wrong key) error = %v, want ErrDecryptionFailure", err)
	}
	if _, err := Decrypt([]byte("not age"), mustKeypair(t)); !errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("Decrypt(garbage) error = %v, want ErrDecryptionFailure", err)
	}
}

func TestEncryptRequiresRecipient(t *testing.T) {
	if _, err := Encrypt([]byte("x")); err == nil {
		t.Error("Encrypt() with no recipients succeeded")
	}
}

func TestLoadOrGenerateKeypair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.key")

	first, generated, err := LoadOrGenerateKeypair(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeypair() error: %v", err)
	}
	defer first.Close()
	if !generated {
		t.Error("first call did not generate")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	second, generated, err := LoadOrGenerateKeypair(path)
	if err != nil {
		t.Fatalf("second LoadOrGenerateKeypair() error: %v", err)
	}
	defer second.Close()
	if generated {
		t.Error("second call generated a new key")
	}
	if second.PublicKey != first.PublicKey {
		t.Errorf("reloaded PublicKey = %q, want %q", second.PublicKey, first.PublicKey)
	}
}

type mapSource map[string][]byte

var errMissing = errors.New("missing")

func (m mapSource) GetCiphertext(_ context.Context, name string) ([]byte, error) {
	ciphertext, ok := m[name]
	if !ok {
		return nil, errMissing
	}
	return ciphertext, nil
}

func TestSealForHostRoundTrip(t *testing.T) {
	server := mustKeypair(t)
	stored, err := Encrypt([]byte("hunter2"), mustRecipient(t, server))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	service := NewService(mapSource{"db": stored, "corrupt": []byte("garbage")}, server, nil)

	hostPublic, hostPrivate, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	ctx := context.Background()

	sealed, err := service.SealForHost(ctx, "db", hostPublic)
	if err != nil {
		t.Fatalf("SealForHost() error: %v", err)
	}
	if bytes.Contains(sealed, []byte("hunter2")) {
		t.Fatal("sealed output contains the plaintext")
	}

	opened, err := OpenForHost(sealed, hostPrivate)
	if err != nil {
		t.Fatalf("OpenForHost() error: %v", err)
	}
	defer opened.Close()
	if opened.String() != "hunter2" {
		t.Errorf("OpenForHost() = %q, want %q", opened.String(), "hunter2")
	}

	again, err := service.SealForHost(ctx, "db", hostPublic)
	if err != nil {
		t.Fatalf("second SealForHost() error: %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Error("two SealForHost() calls produced identical ciphertext")
	}
	reopened, err := OpenForHost(again, hostPrivate)
	if err != nil {
		t.Fatalf("OpenForHost(second) error: %v", err)
	}
	defer reopened.Close()
	if reopened.String() != "hunter2" {
		t.Errorf("OpenForHost(second) = %q, want %q", reopened.String(), "hunter2")
	}

	_, otherPrivate, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if _, err := OpenForHost(sealed, otherPrivate); !errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("OpenForHost(other host) error = %v, want ErrDecryptionFailure", err)
	}

	if _, err := service.SealForHost(ctx, "absent", hostPublic); !errors.Is(err, errMissing) {
		t.Errorf("SealForHost(absent) error = %v, want source error", err)
	}
	if _, err := service.SealForHost(ctx, "corrupt", hostPublic); !errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("SealForHost(corrupt) error = %v, want ErrDecryptionFailure", err)
	}
}

func TestDecryptOversizedIsNotCorruption(t *testing.T) {
	server := mustKeypair(t)
	ciphertext, err := Encrypt(make([]byte, secret.MaxSize+1), mustRecipient(t, server))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	_, err = Decrypt(ciphertext, server)
	if !errors.Is(err, secret.ErrTooLarge) {
		t.Errorf("Decrypt(oversized) error = %v, want ErrTooLarge", err)
	}
	if errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("Decrypt(oversized) error = %v, reported as ErrDecryptionFailure", err)
	}
}
