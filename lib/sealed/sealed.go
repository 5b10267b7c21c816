// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/agessh"
	"golang.org/x/crypto/ssh"

	"github.com/yeet-rs/yeet/lib/secret"
)

// ErrDecryptionFailure is returned when a ciphertext cannot be opened
// with the key at hand.
var ErrDecryptionFailure = errors.New("sealed: decryption failed")

// Keypair holds an age x25519 keypair. The private key lives in a
// secret.Buffer; the caller must Close the keypair when done.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... text. Never log it.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient. Safe to publish: administrators
	// encrypt secrets to it before uploading.
	PublicKey string
}

// Close zeroes and releases the private key. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// identity parses the private key. The string copy is brief and
// request-scoped; age only accepts identities as strings.
func (k *Keypair) identity() (*age.X25519Identity, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(k.PrivateKey.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}
	return identity, nil
}

// GenerateKeypair creates a new x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// LoadKeypair reads a private key written by [WriteKeypair].
func LoadKeypair(path string) (*Keypair, error) {
	privateKey, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading key: %w", err)
	}
	keypair := &Keypair{PrivateKey: privateKey}
	identity, err := keypair.identity()
	if err != nil {
		keypair.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	keypair.PublicKey = identity.Recipient().String()
	return keypair, nil
}

// WriteKeypair stores the private key at path with mode 0600. It
// refuses to overwrite an existing file.
func WriteKeypair(path string, keypair *Keypair) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("sealed: creating key file: %w", err)
	}
	if _, err := keypair.PrivateKey.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("sealed: writing key file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sealed: syncing key file: %w", err)
	}
	return file.Close()
}

// LoadOrGenerateKeypair loads the keypair at path, generating and
// storing a new one when the file does not exist.
func LoadOrGenerateKeypair(path string) (keypair *Keypair, generated bool, err error) {
	keypair, err = LoadKeypair(path)
	if err == nil {
		return keypair, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	keypair, err = GenerateKeypair()
	if err != nil {
		return nil, false, err
	}
	if err := WriteKeypair(path, keypair); err != nil {
		keypair.Close()
		return nil, false, err
	}
	return keypair, true, nil
}

// ParseRecipient parses an age x25519 public key.
func ParseRecipient(publicKey string) (age.Recipient, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("sealed: invalid age public key: %w", err)
	}
	return recipient, nil
}

// HostRecipient returns the age recipient for a host's SSH ed25519
// public key.
func HostRecipient(publicKey ed25519.PublicKey) (age.Recipient, error) {
	sshKey, err := ssh.NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("sealed: converting host key: %w", err)
	}
	recipient, err := agessh.NewEd25519Recipient(sshKey)
	if err != nil {
		return nil, fmt.Errorf("sealed: host recipient: %w", err)
	}
	return recipient, nil
}

// Encrypt encrypts plaintext to every recipient and returns the binary
// age ciphertext.
func Encrypt(plaintext []byte, recipients ...age.Recipient) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("sealed: at least one recipient is required")
	}
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Decrypt opens ciphertext with the server keypair. The caller must
// Close the returned buffer.
func Decrypt(ciphertext []byte, keypair *Keypair) (*secret.Buffer, error) {
	identity, err := keypair.identity()
	if err != nil {
		return nil, err
	}
	return decrypt(ciphertext, identity)
}

// OpenForHost opens a ciphertext produced by [Service.SealForHost] with
// the host's SSH ed25519 private key. The caller must Close the
// returned buffer.
func OpenForHost(ciphertext []byte, hostKey ed25519.PrivateKey) (*secret.Buffer, error) {
	identity, err := agessh.NewEd25519Identity(hostKey)
	if err != nil {
		return nil, fmt.Errorf("sealed: host identity: %w", err)
	}
	return decrypt(ciphertext, identity)
}

// decrypt reports ErrDecryptionFailure only for failures of the age
// stream. Buffer errors (too large, mlock) pass through.
func decrypt(ciphertext []byte, identity age.Identity) (*secret.Buffer, error) {
	stream, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	reader := &streamReader{Reader: stream}
	plaintext, err := secret.NewFromReader(reader, secret.MaxSize)
	if reader.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, reader.err)
	}
	if err != nil {
		return nil, fmt.Errorf("sealed: buffering plaintext: %w", err)
	}
	return plaintext, nil
}

// streamReader remembers the first read error other than io.EOF.
type streamReader struct {
	io.Reader
	err error
}

func (r *streamReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}
