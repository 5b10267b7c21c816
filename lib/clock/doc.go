// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that reads the time or waits holds a Clock instead of calling
// time.Now or time.After. Production code uses [Real]; tests use
// [Fake], which only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go agent.Run(ctx)          // waits on c.After(interval)
//	c.WaitForTimers(1)         // until the poll loop is parked
//	c.Advance(interval)        // fire it deterministically
package clock
