// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"

	"github.com/yeet-rs/yeet/lib/generation"
	"github.com/yeet-rs/yeet/lib/session"
)

// Recover settles an activation interrupted by a crash or reboot. It
// must run before the first cycle.
func (a *Agent) Recover() (generation.Outcome, error) {
	running, err := a.running()
	if err != nil {
		return generation.NothingToRecover, fmt.Errorf("resolving running system: %w", err)
	}
	return a.generations.Recover(running)
}

// Poll asks the server what to do once and does it. result is nil
// unless a cycle ran.
func (a *Agent) Poll(ctx context.Context) (action session.AgentAction, result *Result, err error) {
	running, err := a.running()
	if err != nil {
		return session.AgentAction{}, nil, fmt.Errorf("resolving running system: %w", err)
	}
	response, err := a.server.Check(ctx, running)
	if err != nil {
		return session.AgentAction{}, nil, err
	}

	action = response.Action
	switch action.Kind {
	case session.Nothing:
		if a.detached {
			a.logger.Info("host re-attached")
			a.detached = false
		}
	case session.Detach:
		if !a.detached {
			a.logger.Info("host detached, not converging")
			a.detached = true
		}
	case session.SwitchTo:
		a.detached = false
		if action.Target == nil {
			return action, nil, fmt.Errorf("switch-to without a target")
		}
		cycleResult := a.RunCycle(ctx, Target{RemoteStorePath: *action.Target, Ticket: response.Ticket})
		result = &cycleResult
	default:
		return action, nil, fmt.Errorf("unknown action %d", action.Kind)
	}
	return action, result, nil
}

// Run recovers any interrupted activation, then polls the server until
// ctx is cancelled. Failed checks are retried at a constant interval;
// a failed cycle is reported and polling continues.
func (a *Agent) Run(ctx context.Context) error {
	outcome, err := a.Recover()
	if err != nil {
		a.logger.Error("recovering interrupted activation", "error", err)
	} else if outcome != generation.NothingToRecover {
		a.logger.Info("interrupted activation settled", "outcome", outcome.String())
	}

	for {
		wait := a.pollInterval
		action, result, err := a.Poll(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("check failed", "error", err, "retry_in", a.retryInterval)
			wait = a.retryInterval
		case result != nil:
			a.logger.Debug("cycle finished", "action", action.Kind.String(), "state", result.State.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(wait):
		}
	}
}
