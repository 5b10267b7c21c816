// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/clock"
	"github.com/yeet-rs/yeet/lib/hoststore"
	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/secretstore"
	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/servicetoken"
)

// State is the position of a Session in the update protocol.
type State uint8

const (
	Opened State = iota + 1
	TargetResolved
	AwaitingSecretRequest
	Fulfilling
	Closed
)

func (s State) String() string {
	switch s {
	case Opened:
		return "opened"
	case TargetResolved:
		return "target-resolved"
	case AwaitingSecretRequest:
		return "awaiting-secret-request"
	case Fulfilling:
		return "fulfilling"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrInvalidTransition is returned for a call the current state
	// does not allow.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrTicketTarget is returned when a ticket names a store path that
	// is no longer the host's target.
	ErrTicketTarget = errors.New("session: ticket target is no longer current")
)

// PartialAccessDenied rejects a whole secret batch. Names lists the
// denied secrets in request order.
type PartialAccessDenied struct {
	Names []string
}

func (e *PartialAccessDenied) Error() string {
	return fmt.Sprintf("access denied to %d requested secret(s): %s", len(e.Names), strings.Join(e.Names, ", "))
}

// maxParallel bounds concurrent checks and seals within one batch.
const maxParallel = 8

// Config wires a Handler to its stores.
type Config struct {
	Hosts    *hoststore.Store
	Secrets  *secretstore.Store
	Policies *authorization.Store
	Sealer   *sealed.Service

	// StoreKey is the at-rest keypair; its public half is served to
	// administrators.
	StoreKey *sealed.Keypair

	// TicketKey signs session tickets. Typically the same key that
	// signs responses.
	TicketKey ed25519.PrivateKey
	TicketTTL time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Handler opens sessions and serves the administrative actions.
type Handler struct {
	hosts     *hoststore.Store
	secrets   *secretstore.Store
	policies  *authorization.Store
	checker   *authorization.Checker
	sealer    *sealed.Service
	storeKey  *sealed.Keypair
	ticketKey ed25519.PrivateKey
	ticketTTL time.Duration
	spent     *servicetoken.Spent
	clock     clock.Clock
	logger    *slog.Logger
}

// NewHandler returns a Handler over config.
func NewHandler(config Config) *Handler {
	if config.TicketTTL == 0 {
		config.TicketTTL = servicetoken.DefaultTicketTTL
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		hosts:     config.Hosts,
		secrets:   config.Secrets,
		policies:  config.Policies,
		checker:   authorization.NewChecker(config.Policies),
		sealer:    config.Sealer,
		storeKey:  config.StoreKey,
		ticketKey: config.TicketKey,
		ticketTTL: config.TicketTTL,
		spent:     servicetoken.NewSpent(),
		clock:     config.Clock,
		logger:    config.Logger,
	}
}

// Session is one host's update attempt. A Session is used by one
// goroutine at a time.
type Session struct {
	handler *Handler
	host    hoststore.Host
	state   State
	target  string
}

// Open starts a session for an authenticated caller. The caller must
// be an enrolled host.
func (h *Handler) Open(ctx context.Context, caller service.Caller) (*Session, error) {
	host, err := h.hosts.Get(ctx, caller.Identity)
	if errors.Is(err, hoststore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is not an enrolled host", authorization.ErrUnauthorized, caller.Identity.Short())
	}
	if err != nil {
		return nil, err
	}
	return &Session{handler: h, host: host, state: Opened}, nil
}

// Resume rebuilds a session from a ticket issued by ResolveTarget. The
// ticket must belong to the caller, be unexpired, unused, and name the
// host's current target.
func (h *Handler) Resume(ctx context.Context, caller service.Caller, ticketBytes []byte) (*Session, error) {
	ticket, err := servicetoken.VerifyAt(h.ticketKey.Public().(ed25519.PublicKey), ticketBytes, caller.Identity, h.clock.Now())
	if err != nil {
		return nil, err
	}
	session, err := h.Open(ctx, caller)
	if err != nil {
		return nil, err
	}
	if session.host.Detached || session.host.Target.StorePath != ticket.StorePath {
		return nil, ErrTicketTarget
	}
	if err := h.spent.Redeem(ticket, h.clock.Now()); err != nil {
		return nil, err
	}
	session.state = AwaitingSecretRequest
	session.target = ticket.StorePath
	return session, nil
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Host returns the host the session belongs to.
func (s *Session) Host() hoststore.Host { return s.host }

func (s *Session) transition(from, to State) error {
	if s.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, s.state)
	}
	s.state = to
	return nil
}

// ResolveTarget decides what the host should do given the store path it
// currently runs. A SwitchTo result carries a ticket for the secret
// request and leaves the session awaiting it; any other result closes
// the session.
func (s *Session) ResolveTarget(currentStorePath string) (CheckResponse, error) {
	if err := s.transition(Opened, TargetResolved); err != nil {
		return CheckResponse{}, err
	}

	target := s.host.Target
	switch {
	case s.host.Detached:
		s.state = Closed
		return CheckResponse{Action: AgentAction{Kind: Detach}}, nil
	case target.IsZero() || target.StorePath == currentStorePath:
		s.state = Closed
		return CheckResponse{Action: AgentAction{Kind: Nothing}}, nil
	}

	h := s.handler
	ticket, err := servicetoken.NewTicket(s.host.Identity, target.StorePath, h.clock.Now(), h.ticketTTL)
	if err != nil {
		s.state = Closed
		return CheckResponse{}, err
	}
	ticketBytes, err := servicetoken.Mint(h.ticketKey, ticket)
	if err != nil {
		s.state = Closed
		return CheckResponse{}, err
	}

	s.target = target.StorePath
	s.state = AwaitingSecretRequest
	h.logger.Info("host directed to new target",
		"host", s.host.Name,
		"store_path", target.StorePath,
		"current", currentStorePath,
	)
	return CheckResponse{
		Action: AgentAction{
			Kind: SwitchTo,
			Target: &RemoteStorePath{
				StorePath:   target.StorePath,
				Substitutor: target.Substitutor,
				PublicKey:   target.CachePublicKey,
			},
		},
		Ticket: ticketBytes,
	}, nil
}

// RequestSecrets checks every name and, only if all are allowed, seals
// each for the host. The result holds every requested name or the call
// fails; a denial is reported as *PartialAccessDenied. The session is
// closed afterwards whatever the outcome.
func (s *Session) RequestSecrets(ctx context.Context, names []string) (map[string][]byte, error) {
	if err := s.transition(AwaitingSecretRequest, Fulfilling); err != nil {
		return nil, err
	}
	defer func() { s.state = Closed }()

	h := s.handler
	unique := dedupe(names)

	allowed := make([]bool, len(unique))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallel)
	for i, name := range unique {
		group.Go(func() error {
			secret, err := h.secrets.Get(groupCtx, name)
			if errors.Is(err, secretstore.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			allowed[i] = h.checker.Check(s.host.Identity, authorization.SecretRequest, secret)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("checking secret access: %w", err)
	}

	var denied []string
	for i, name := range unique {
		if !allowed[i] {
			denied = append(denied, name)
		}
	}
	if len(denied) > 0 {
		h.logger.Warn("secret batch denied",
			"host", s.host.Name,
			"requested", len(unique),
			"denied", denied,
		)
		return nil, &PartialAccessDenied{Names: denied}
	}

	ciphertexts := make([][]byte, len(unique))
	group, groupCtx = errgroup.WithContext(ctx)
	group.SetLimit(maxParallel)
	for i, name := range unique {
		group.Go(func() error {
			sealedValue, err := h.sealer.SealForHost(groupCtx, name, s.host.PublicKey)
			if err != nil {
				return fmt.Errorf("sealing %q: %w", name, err)
			}
			ciphertexts[i] = sealedValue
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(unique))
	for i, name := range unique {
		result[name] = ciphertexts[i]
	}
	h.logger.Info("secret batch sealed", "host", s.host.Name, "secrets", len(result), "store_path", s.target)
	return result, nil
}

// Close ends the session. Safe to call in any state.
func (s *Session) Close() { s.state = Closed }

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			unique = append(unique, name)
		}
	}
	return unique
}
