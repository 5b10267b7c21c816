// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/identity"
)

const signatureSize = ed25519.SignatureSize

// DefaultTicketTTL bounds the time between a host's check and its
// secret request.
const DefaultTicketTTL = 10 * time.Minute

// Ticket is the payload of a session ticket.
type Ticket struct {
	// ID is random and unique per ticket; it keys the Spent set.
	ID string `cbor:"1,keyasint"`

	// Host is the identity the ticket was issued to. A ticket presented
	// by any other caller is rejected.
	Host identity.Identity `cbor:"2,keyasint"`

	// StorePath is the target the host was told to fetch.
	StorePath string `cbor:"3,keyasint"`

	// IssuedAt and ExpiresAt are Unix seconds.
	IssuedAt  int64 `cbor:"4,keyasint"`
	ExpiresAt int64 `cbor:"5,keyasint"`
}

var (
	ErrTokenTooShort    = errors.New("servicetoken: token too short for signature")
	ErrInvalidSignature = errors.New("servicetoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("servicetoken: token has expired")
	ErrHostMismatch     = errors.New("servicetoken: ticket was issued to another host")
	ErrTokenSpent       = errors.New("servicetoken: ticket already used")
)

// Sign returns payload followed by its signature.
func Sign(privateKey ed25519.PrivateKey, payload []byte) []byte {
	signature := ed25519.Sign(privateKey, payload)
	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result
}

// Open checks the trailing signature of data against publicKey and
// returns the payload.
func Open(publicKey ed25519.PublicKey, data []byte) ([]byte, error) {
	if len(data) <= signatureSize {
		return nil, ErrTokenTooShort
	}
	split := len(data) - signatureSize
	if !ed25519.Verify(publicKey, data[:split], data[split:]) {
		return nil, ErrInvalidSignature
	}
	return data[:split], nil
}

// NewTicket fills in a fresh ID and the validity window.
func NewTicket(host identity.Identity, storePath string, now time.Time, ttl time.Duration) (*Ticket, error) {
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("servicetoken: generating ticket id: %w", err)
	}
	return &Ticket{
		ID:        hex.EncodeToString(id),
		Host:      host,
		StorePath: storePath,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}, nil
}

// Mint signs ticket with the server's private key.
func Mint(privateKey ed25519.PrivateKey, ticket *Ticket) ([]byte, error) {
	payload, err := codec.Marshal(ticket)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: encoding ticket: %w", err)
	}
	return Sign(privateKey, payload), nil
}

// VerifyAt checks the signature and expiry of a ticket and that it was
// issued to caller.
func VerifyAt(publicKey ed25519.PublicKey, data []byte, caller identity.Identity, now time.Time) (*Ticket, error) {
	payload, err := Open(publicKey, data)
	if err != nil {
		return nil, err
	}
	var ticket Ticket
	if err := codec.Unmarshal(payload, &ticket); err != nil {
		return nil, fmt.Errorf("servicetoken: decoding ticket: %w", err)
	}
	if now.Unix() >= ticket.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if ticket.Host != caller {
		return nil, ErrHostMismatch
	}
	return &ticket, nil
}
