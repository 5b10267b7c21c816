// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFromPublicKeyStable(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Close()

	first := FromPublicKey(key.Public())
	second := FromPublicKey(append(ed25519.PublicKey(nil), key.Public()...))
	if first != second {
		t.Errorf("FromPublicKey() not stable: %s != %s", first, second)
	}
	if key.Identity() != first {
		t.Errorf("Key.Identity() = %s, want %s", key.Identity(), first)
	}

	parsed, err := Parse(first.String())
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", first, err)
	}
	if parsed != first {
		t.Errorf("Parse() = %s, want %s", parsed, first)
	}
}

func TestFromPublicKeyDistinct(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer a.Close()
	b, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer b.Close()

	if a.Identity() == b.Identity() {
		t.Error("two generated keys share an identity")
	}
}

func TestParseRejects(t *testing.T) {
	for _, input := range []string{
		"",
		"short",
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!",
	} {
		if _, err := Parse(input); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalid", input, err)
		}
	}
}

func TestSignVerify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Close()

	message := []byte("check")
	if !ed25519.Verify(key.Public(), message, key.Sign(message)) {
		t.Error("signature from Key.Sign does not verify")
	}
}

func TestSaveLoadKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Close()

	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := SaveKey(path, key, "test"); err != nil {
		t.Fatalf("SaveKey() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %o, want 0600", info.Mode().Perm())
	}
	if err := SaveKey(path, key, "test"); err == nil {
		t.Error("SaveKey() overwrote an existing file")
	}

	loaded, err := LoadKey(path)
	if err != nil {
		t.Fatalf("LoadKey() error: %v", err)
	}
	defer loaded.Close()
	if loaded.Identity() != key.Identity() {
		t.Errorf("loaded identity = %s, want %s", loaded.Identity(), key.Identity())
	}
}

func TestAuthorizedKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Close()

	text, err := AuthorizedKey(key.Public())
	if err != nil {
		t.Fatalf("AuthorizedKey() error: %v", err)
	}
	parsed, err := ParseAuthorizedKey(text + " root@host")
	if err != nil {
		t.Fatalf("ParseAuthorizedKey() error: %v", err)
	}
	if !parsed.Equal(key.Public()) {
		t.Error("ParseAuthorizedKey() returned a different key")
	}
}

func TestParseAuthorizedKeyRejectsRSA(t *testing.T) {
	// A syntactically valid RSA key line; only the type matters.
	const rsa = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAAAgQDD0Z7Jx0Vv3Iq6G1lQ8iZ2l0mQ3v0m5m7l0b8lq2V8bV0Z3N6b7vVn1w2l8T6g4uR1y9p0m8dQn2k2K2Xn7Yb5v0pN7lXc9a0Gk3Z5V6x8y0b1c2d3e4f5g6h7i8j9k0l1m2n3o4p5q6r7s8t9u0v1w2x3y4z5A6B7C8D9E0F1G2H3I4J5K6L7M8N9O0P1Q2R3S4T5U6V7W8X9Y0Z1aQ=="
	if _, err := ParseAuthorizedKey(rsa); err == nil {
		t.Error("ParseAuthorizedKey() accepted a non-ed25519 key")
	}
}
