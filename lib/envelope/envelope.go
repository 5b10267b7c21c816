// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/servicetoken"
)

// DefaultSkew is how far a request's issue time may be from the
// server's clock.
const DefaultSkew = 5 * time.Minute

var (
	ErrMalformed       = errors.New("envelope: malformed request")
	ErrStale           = errors.New("envelope: request outside the accepted time window")
	ErrRequestMismatch = errors.New("envelope: response answers a different request")
)

// Request is the signed part of a request.
type Request struct {
	PublicKey []byte           `cbor:"1,keyasint"`
	Action    string           `cbor:"2,keyasint"`
	IssuedAt  int64            `cbor:"3,keyasint"`
	Body      codec.RawMessage `cbor:"4,keyasint,omitempty"`
}

// Verified is a request whose signature and freshness have been
// checked.
type Verified struct {
	Caller    identity.Identity
	PublicKey ed25519.PublicKey
	Action    string
	Body      codec.RawMessage
	Digest    [32]byte
}

// Seal encodes body and signs the request with key.
func Seal(key *identity.Key, action string, body any, now time.Time) ([]byte, error) {
	request := Request{
		PublicKey: key.Public(),
		Action:    action,
		IssuedAt:  now.UnixNano(),
	}
	if body != nil {
		encoded, err := codec.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("envelope: encoding %s body: %w", action, err)
		}
		request.Body = encoded
	}
	payload, err := codec.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("envelope: encoding request: %w", err)
	}
	return servicetoken.Sign(key.PrivateKey(), payload), nil
}

// Open verifies a sealed request against the key it carries and checks
// that it was issued within skew of now.
func Open(data []byte, now time.Time, skew time.Duration) (*Verified, error) {
	if len(data) <= ed25519.SignatureSize {
		return nil, ErrMalformed
	}
	var request Request
	if err := codec.Unmarshal(data[:len(data)-ed25519.SignatureSize], &request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(request.PublicKey) != ed25519.PublicKeySize || request.Action == "" {
		return nil, ErrMalformed
	}
	publicKey := ed25519.PublicKey(request.PublicKey)
	if _, err := servicetoken.Open(publicKey, data); err != nil {
		return nil, err
	}

	issued := time.Unix(0, request.IssuedAt)
	if issued.Before(now.Add(-skew)) || issued.After(now.Add(skew)) {
		return nil, fmt.Errorf("%w: issued %s, server time %s", ErrStale, issued.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	return &Verified{
		Caller:    identity.FromPublicKey(publicKey),
		PublicKey: publicKey,
		Action:    request.Action,
		Body:      request.Body,
		Digest:    Digest(data),
	}, nil
}

// Digest identifies a sealed request.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// SealResponse signs an encoded response with the server key.
func SealResponse(privateKey ed25519.PrivateKey, payload []byte) []byte {
	return servicetoken.Sign(privateKey, payload)
}

// OpenResponse verifies a response signed by serverKey.
func OpenResponse(serverKey ed25519.PublicKey, data []byte) ([]byte, error) {
	return servicetoken.Open(serverKey, data)
}

// CheckDigest compares the request digest echoed in a response with the
// digest of the request that was sent.
func CheckDigest(sent []byte, echoed []byte) error {
	want := Digest(sent)
	if !bytes.Equal(want[:], echoed) {
		return ErrRequestMismatch
	}
	return nil
}
