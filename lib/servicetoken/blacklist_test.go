// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"errors"
	"testing"
	"time"
)

func TestSpentRedeemOnce(t *testing.T) {
	spent := NewSpent()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := &Ticket{ID: "t1", ExpiresAt: now.Add(5 * time.Minute).Unix()}

	if err := spent.Redeem(ticket, now); err != nil {
		t.Fatalf("first Redeem() error: %v", err)
	}
	if err := spent.Redeem(ticket, now.Add(time.Minute)); !errors.Is(err, ErrTokenSpent) {
		t.Errorf("second Redeem() error = %v, want ErrTokenSpent", err)
	}
}

func TestSpentDropsExpiredEntries(t *testing.T) {
	spent := NewSpent()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		ticket := &Ticket{ID: id, ExpiresAt: now.Add(time.Duration(i+1) * 5 * time.Minute).Unix()}
		if err := spent.Redeem(ticket, now); err != nil {
			t.Fatalf("Redeem(%s) error: %v", id, err)
		}
	}
	if spent.Len() != 3 {
		t.Fatalf("Len = %d, want 3", spent.Len())
	}

	// At 10:07 "a" (10:05) has expired and is dropped by the next redeem.
	later := &Ticket{ID: "d", ExpiresAt: now.Add(time.Hour).Unix()}
	if err := spent.Redeem(later, now.Add(7*time.Minute)); err != nil {
		t.Fatalf("Redeem(d) error: %v", err)
	}
	if spent.Len() != 3 {
		t.Errorf("Len after cleanup = %d, want 3", spent.Len())
	}
}
