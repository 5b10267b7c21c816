// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ssh"
)

// Identity is the derived name of a public key.
type Identity string

// domainKey separates identity hashes from every other BLAKE3 use.
var domainKey = [32]byte{
	'y', 'e', 'e', 't', '.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', '.',
	'e', 'd', '2', '5', '5', '1', '9', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// encodedLength is the length of an encoded 32-byte digest.
var encodedLength = encoding.EncodedLen(32)

// ErrInvalid is returned by Parse for malformed identities.
var ErrInvalid = errors.New("identity: malformed identity")

// FromPublicKey derives the identity of an ed25519 public key.
func FromPublicKey(publicKey ed25519.PublicKey) Identity {
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("identity: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(publicKey)
	return Identity(strings.ToLower(encoding.EncodeToString(hasher.Sum(nil))))
}

// Parse validates s as an identity.
func Parse(s string) (Identity, error) {
	if len(s) != encodedLength {
		return "", fmt.Errorf("%w: %q has length %d, want %d", ErrInvalid, s, len(s), encodedLength)
	}
	if _, err := encoding.DecodeString(strings.ToUpper(s)); err != nil || strings.ToLower(s) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Identity(s), nil
}

// String returns the identity text.
func (i Identity) String() string { return string(i) }

// Short returns a prefix suitable for log lines and tables.
func (i Identity) Short() string {
	if len(i) <= 12 {
		return string(i)
	}
	return string(i[:12])
}

// ParseAuthorizedKey parses an SSH public key in authorized_keys form
// ("ssh-ed25519 AAAA... comment"). Only ed25519 keys are accepted: the
// same key signs requests and receives age-encrypted secrets.
func ParseAuthorizedKey(text string) (ed25519.PublicKey, error) {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parsing SSH public key: %w", err)
	}
	return Ed25519FromSSH(parsed)
}

// Ed25519FromSSH extracts the raw ed25519 key from an SSH public key.
func Ed25519FromSSH(key ssh.PublicKey) (ed25519.PublicKey, error) {
	if key.Type() != ssh.KeyAlgoED25519 {
		return nil, fmt.Errorf("SSH key type %s is not supported, want %s", key.Type(), ssh.KeyAlgoED25519)
	}
	cryptoKey, ok := key.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("SSH key does not expose its crypto key")
	}
	publicKey, ok := cryptoKey.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("SSH key is not an ed25519 key")
	}
	return publicKey, nil
}

// AuthorizedKey renders publicKey in authorized_keys form without a
// comment or trailing newline.
func AuthorizedKey(publicKey ed25519.PublicKey) (string, error) {
	sshKey, err := ssh.NewPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("encoding SSH public key: %w", err)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshKey))), nil
}
