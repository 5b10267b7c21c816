// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"time"
)

// State is a step of an update cycle.
type State uint8

const (
	Idle State = iota
	StoreFetched
	SecretsRequested
	SecretsMaterialized
	Activating
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case StoreFetched:
		return "store-fetched"
	case SecretsRequested:
		return "secrets-requested"
	case SecretsMaterialized:
		return "secrets-materialized"
	case Activating:
		return "activating"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// Terminal reports whether a cycle ends in s.
func (s State) Terminal() bool { return s == Committed || s == RolledBack }

var (
	// ErrActivationFailure wraps the error of a failed system
	// activation.
	ErrActivationFailure = errors.New("agent: activation failed")

	// ErrTimeout wraps a fetch or secret request that ran out of time.
	ErrTimeout = errors.New("agent: step timed out")
)

// Result is the outcome of one cycle.
type Result struct {
	// State is Committed or RolledBack.
	State State

	StorePath string

	// Sequence is the committed generation, or zero.
	Sequence uint64

	// Path lists every state the cycle passed through, ending with
	// State.
	Path []State

	// Denied names the secrets the server refused, if that was the
	// reason for the rollback.
	Denied []string

	// Err is why the cycle rolled back. A committed cycle carries an
	// activation error when the switch succeeded with failed units.
	Err error

	Duration time.Duration
}
