// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
)

// CiphertextSource returns the at-rest ciphertext of a named secret.
// A missing secret must be reported with an error the caller can match
// (secretstore.ErrNotFound); Service passes it through unchanged.
type CiphertextSource interface {
	GetCiphertext(ctx context.Context, name string) ([]byte, error)
}

// Service re-encrypts stored secrets for individual hosts. It holds no
// lock and is safe for concurrent use.
type Service struct {
	source  CiphertextSource
	keypair *Keypair
	logger  *slog.Logger
}

// NewService returns a Service decrypting with keypair. The keypair is
// borrowed and must outlive the Service.
func NewService(source CiphertextSource, keypair *Keypair, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{source: source, keypair: keypair, logger: logger}
}

// SealForHost returns the named secret encrypted to hostPublicKey. The
// plaintext exists only inside this call, in a locked buffer that is
// closed before returning.
func (s *Service) SealForHost(ctx context.Context, name string, hostPublicKey ed25519.PublicKey) ([]byte, error) {
	recipient, err := HostRecipient(hostPublicKey)
	if err != nil {
		return nil, err
	}

	ciphertext, err := s.source.GetCiphertext(ctx, name)
	if err != nil {
		return nil, err
	}

	plaintext, err := Decrypt(ciphertext, s.keypair)
	if err != nil {
		if errors.Is(err, ErrDecryptionFailure) {
			s.logger.Error("stored secret failed to decrypt", "secret", name, "error", err)
		}
		return nil, err
	}
	defer plaintext.Close()

	sealed, err := Encrypt(plaintext.Bytes(), recipient)
	if err != nil {
		return nil, fmt.Errorf("sealing %q for host: %w", name, err)
	}
	return sealed, nil
}
