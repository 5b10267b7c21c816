// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

// StopTimeout bounds how long a cleanup waits for a background
// goroutine to return after its context is cancelled.
const StopTimeout = 5 * time.Second

// Fataler is the part of testing.TB the receive helpers need.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first. what names the
// awaited event in the failure message.
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed", what)
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received after %v", what, timeout)
	}
	panic("unreachable")
}

// Background runs fn in a goroutine until the test ends. Cleanup
// cancels fn's context and waits for it to return; an error other
// than cancellation fails the test.
//
//	testutil.Background(t, func(ctx context.Context) error {
//		return server.Serve(ctx, listener)
//	})
func Background(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	t.Cleanup(func() {
		cancel()
		err := RequireReceive(t, done, StopTimeout, "background goroutine stopping")
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("background goroutine: %v", err)
		}
	})
}
