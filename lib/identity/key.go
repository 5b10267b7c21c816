// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/yeet-rs/yeet/lib/secret"
)

// Key is an ed25519 private key held in locked memory. The caller must
// Close it.
type Key struct {
	private *secret.Buffer
	public  ed25519.PublicKey
}

// NewKey wraps privateKey. The caller's slice is zeroed.
func NewKey(privateKey ed25519.PrivateKey) (*Key, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key has %d bytes, want %d", len(privateKey), ed25519.PrivateKeySize)
	}
	public := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(public, privateKey.Public().(ed25519.PublicKey))

	buffer, err := secret.NewFromBytes(privateKey)
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Key{private: buffer, public: public}, nil
}

// GenerateKey creates a fresh key.
func GenerateKey() (*Key, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return NewKey(private)
}

// LoadKey reads an unencrypted OpenSSH ed25519 private key, such as
// /etc/ssh/ssh_host_ed25519_key.
func LoadKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	defer secret.Zero(data)

	raw, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key %s is passphrase protected; use an unencrypted key", path)
		}
		return nil, fmt.Errorf("parsing private key %s: %w", path, err)
	}

	switch key := raw.(type) {
	case *ed25519.PrivateKey:
		return NewKey(*key)
	case ed25519.PrivateKey:
		return NewKey(key)
	default:
		return nil, fmt.Errorf("private key %s is %T, want ed25519", path, raw)
	}
}

// SaveKey writes k to path in OpenSSH format with mode 0600. An
// existing file is never overwritten.
func SaveKey(path string, k *Key, comment string) error {
	block, err := ssh.MarshalPrivateKey(k.signingKey(), comment)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	encoded := pem.EncodeToMemory(block)
	defer secret.Zero(encoded)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := file.Write(encoded); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// Public returns the public half.
func (k *Key) Public() ed25519.PublicKey { return k.public }

// Identity returns the identity derived from the public half.
func (k *Key) Identity() Identity { return FromPublicKey(k.public) }

// Sign signs message.
func (k *Key) Sign(message []byte) []byte {
	return ed25519.Sign(k.signingKey(), message)
}

// PrivateKey exposes the key for APIs that need it directly (age's
// SSH identity). The slice aliases locked memory and is invalid after
// Close.
func (k *Key) PrivateKey() ed25519.PrivateKey { return k.signingKey() }

func (k *Key) signingKey() ed25519.PrivateKey {
	return ed25519.PrivateKey(k.private.Bytes())
}

// Close releases the private key memory.
func (k *Key) Close() error { return k.private.Close() }
