// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"sync"
	"time"
)

// Spent is the set of ticket IDs that have already been redeemed.
// Entries are kept until the ticket's natural expiry; after that
// VerifyAt rejects the ticket anyway.
type Spent struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewSpent returns an empty set.
func NewSpent() *Spent {
	return &Spent{entries: make(map[string]time.Time)}
}

// Redeem marks ticket as used. It returns ErrTokenSpent if the ticket
// was redeemed before. Expired entries are dropped on the way.
func (s *Spent) Redeem(ticket *Ticket, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, id)
		}
	}
	if _, used := s.entries[ticket.ID]; used {
		return ErrTokenSpent
	}
	s.entries[ticket.ID] = time.Unix(ticket.ExpiresAt, 0)
	return nil
}

// Len returns the number of tracked tickets.
func (s *Spent) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
