// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source of the server and the agent: ticket and
// request expiry read Now, the agent's poll and retry loops wait on
// After.
type Clock interface {
	Now() time.Time

	// After fires once d has elapsed, immediately when d <= 0.
	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

// Real returns the wall clock.
func Real() Clock { return wallClock{} }

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
