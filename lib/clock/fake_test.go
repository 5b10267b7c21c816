// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowStandsStill(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Errorf("Now() = %v, want %v", c.Now(), epoch)
	}
	c.Advance(time.Minute)
	if want := epoch.Add(time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfterFiresOnDeadline(t *testing.T) {
	c := Fake(epoch)
	channel := c.After(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-channel:
		if want := epoch.Add(10 * time.Second); !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) was not ready immediately")
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter goroutine did not wake")
	}
}
