// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yeet-rs/yeet/lib/clock"
	"github.com/yeet-rs/yeet/lib/generation"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/manifest"
	"github.com/yeet-rs/yeet/lib/nix"
	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/session"
)

const (
	DefaultFetchTimeout   = 30 * time.Minute
	DefaultRequestTimeout = time.Minute
	DefaultPollInterval   = time.Minute
	DefaultRetryInterval  = 15 * time.Second

	// DefaultNetrcSecret is the secret holding the substituter
	// credential used for fetching.
	DefaultNetrcSecret = "netrc"
)

// Config configures an Agent. Server, Generations, HostKey, Fetcher
// and Activator are required.
type Config struct {
	Server      Server
	Generations *generation.Store

	// HostKey opens the secrets the server seals to this host. It is
	// borrowed.
	HostKey *identity.Key

	Fetcher   Fetcher
	Activator Activator

	// RunningSystem returns the store path the host runs. Defaults to
	// nix.RunningSystem.
	RunningSystem func() (string, error)

	NetrcSecret    string
	FetchTimeout   time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
	RetryInterval  time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Agent runs update cycles for one host.
type Agent struct {
	server      Server
	generations *generation.Store
	hostKey     *identity.Key
	fetcher     Fetcher
	activator   Activator
	running     func() (string, error)

	netrcSecret    string
	fetchTimeout   time.Duration
	requestTimeout time.Duration
	pollInterval   time.Duration
	retryInterval  time.Duration

	clock  clock.Clock
	logger *slog.Logger

	// cycle serializes RunCycle.
	cycle sync.Mutex
	state atomic.Uint32

	// detached is only touched by Poll.
	detached bool
}

// New returns an Agent in the Idle state.
func New(config Config) *Agent {
	if config.RunningSystem == nil {
		config.RunningSystem = nix.RunningSystem
	}
	if config.NetrcSecret == "" {
		config.NetrcSecret = DefaultNetrcSecret
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		server:         config.Server,
		generations:    config.Generations,
		hostKey:        config.HostKey,
		fetcher:        config.Fetcher,
		activator:      config.Activator,
		running:        config.RunningSystem,
		netrcSecret:    config.NetrcSecret,
		fetchTimeout:   config.FetchTimeout,
		requestTimeout: config.RequestTimeout,
		pollInterval:   config.PollInterval,
		retryInterval:  config.RetryInterval,
		clock:          config.Clock,
		logger:         config.Logger,
	}
}

// State returns the state of the running cycle, or the terminal state
// of the last one.
func (a *Agent) State() State { return State(a.state.Load()) }

// Target is a SwitchTo instruction together with the session ticket
// that authorizes the secret request.
type Target struct {
	session.RemoteStorePath
	Ticket []byte
}

// cycle tracks one RunCycle.
type cycle struct {
	agent  *Agent
	target Target
	logger *slog.Logger
	start  time.Time
	path   []State
}

func (c *cycle) enter(state State) {
	c.agent.state.Store(uint32(state))
	c.path = append(c.path, state)
	c.logger.Debug("update cycle state", "state", state.String())
}

func (c *cycle) finish(state State, sequence uint64, err error) Result {
	c.enter(state)
	result := Result{
		State:     state,
		StorePath: c.target.StorePath,
		Sequence:  sequence,
		Path:      c.path,
		Err:       err,
		Duration:  c.agent.clock.Now().Sub(c.start),
	}
	var partial *session.PartialAccessDenied
	if errors.As(err, &partial) {
		result.Denied = partial.Names
	}
	if state == RolledBack {
		c.logger.Error("update rolled back", "error", err, "duration", result.Duration)
	} else {
		c.logger.Info("update committed", "sequence", sequence, "duration", result.Duration)
	}
	return result
}

// RunCycle converges the host to target. It waits for a cycle already
// in progress and always ends in Committed or RolledBack. A cycle that
// rolls back leaves the current generation as it was. A failed
// activation that still switched the host commits and carries the
// activation error in Result.Err.
func (a *Agent) RunCycle(ctx context.Context, target Target) Result {
	a.cycle.Lock()
	defer a.cycle.Unlock()

	c := &cycle{
		agent:  a,
		target: target,
		logger: a.logger.With("store_path", target.StorePath),
		start:  a.clock.Now(),
	}
	c.enter(Idle)

	current, hasCurrent, err := a.generations.Current()
	if err != nil {
		return c.finish(RolledBack, 0, err)
	}
	request := FetchRequest{Target: target.RemoteStorePath}
	if hasCurrent {
		request.NetrcFile, _ = current.File(a.netrcSecret)
	}
	err = withTimeout(ctx, a.fetchTimeout, func(ctx context.Context) error {
		return a.fetcher.Fetch(ctx, request)
	})
	if err != nil {
		return c.finish(RolledBack, 0, fmt.Errorf("fetching %s: %w", target.StorePath, err))
	}
	c.enter(StoreFetched)

	required, err := manifest.Load(target.StorePath)
	if err != nil {
		return c.finish(RolledBack, 0, err)
	}
	names := required.Names()
	c.enter(SecretsRequested)

	var ciphertexts map[string][]byte
	if len(names) > 0 {
		err = withTimeout(ctx, a.requestTimeout, func(ctx context.Context) error {
			var requestErr error
			ciphertexts, requestErr = a.server.RequestSecrets(ctx, target.Ticket, names)
			return requestErr
		})
		if err != nil {
			return c.finish(RolledBack, 0, fmt.Errorf("requesting secrets: %w", err))
		}
	}

	pending, err := a.materialize(target.StorePath, required, ciphertexts)
	if err != nil {
		return c.finish(RolledBack, 0, err)
	}
	c.enter(SecretsMaterialized)

	running, err := a.running()
	if err != nil {
		c.logger.Warn("resolving running system", "error", err)
	}
	record := generation.Record{
		Sequence:          pending.Sequence(),
		StorePath:         target.StorePath,
		PreviousStorePath: running,
		StartedAt:         a.clock.Now(),
	}
	if err := a.generations.WriteRecord(record); err != nil {
		a.discard(pending, c.logger)
		return c.finish(RolledBack, 0, err)
	}
	c.enter(Activating)

	// Activation runs to completion even when ctx is cancelled.
	activateErr := a.activator.Activate(context.WithoutCancel(ctx), Activation{
		StorePath:  target.StorePath,
		SecretsDir: pending.Dir(),
	})
	if activateErr != nil {
		activateErr = fmt.Errorf("%w: %w", ErrActivationFailure, activateErr)
		// switch-to-configuration exits non-zero when some units fail
		// after the switch. The running system decides the outcome.
		switched, err := a.running()
		if err != nil || switched != target.StorePath {
			a.discard(pending, c.logger)
			return c.finish(RolledBack, 0, activateErr)
		}
		c.logger.Warn("activation reported failure but the target is running", "error", activateErr)
	}

	if err := a.generations.Commit(pending); err != nil {
		// The record stays so the next Recover commits or rolls back
		// by the running system.
		return c.finish(RolledBack, 0, fmt.Errorf("committing generation %d: %w", pending.Sequence(), err))
	}
	if err := a.generations.ClearRecord(); err != nil {
		c.logger.Warn("clearing activation record", "error", err)
	}
	if err := a.generations.GC(); err != nil {
		c.logger.Warn("collecting old generations", "error", err)
	}
	return c.finish(Committed, pending.Sequence(), activateErr)
}

// materialize opens every required secret and writes a sealed pending
// generation. Nothing is left on disk when it fails.
func (a *Agent) materialize(storePath string, required *manifest.Manifest, ciphertexts map[string][]byte) (*generation.Pending, error) {
	pending, err := a.generations.Begin(storePath, required.Digest)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*generation.Pending, error) {
		a.discard(pending, a.logger)
		return nil, err
	}
	for _, name := range required.Names() {
		ciphertext, ok := ciphertexts[name]
		if !ok {
			return fail(fmt.Errorf("server returned no value for secret %q", name))
		}
		plaintext, err := sealed.OpenForHost(ciphertext, a.hostKey.PrivateKey())
		if err != nil {
			return fail(fmt.Errorf("opening secret %q: %w", name, err))
		}
		if err := pending.Place(name, required.Entries[name], plaintext); err != nil {
			return fail(err)
		}
	}
	if err := pending.Seal(); err != nil {
		return fail(err)
	}
	return pending, nil
}

// discard rolls back pending and clears any activation record.
func (a *Agent) discard(pending *generation.Pending, logger *slog.Logger) {
	if err := a.generations.Rollback(pending); err != nil {
		logger.Error("removing pending generation", "sequence", pending.Sequence(), "error", err)
	}
	if err := a.generations.ClearRecord(); err != nil {
		logger.Warn("clearing activation record", "error", err)
	}
}

// withTimeout runs step under a deadline. A step that fails because
// the deadline passed is wrapped in ErrTimeout.
func withTimeout(ctx context.Context, timeout time.Duration, step func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := step(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
	}
	return err
}
