// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yeet-rs/yeet/lib/clock"
	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/envelope"
	"github.com/yeet-rs/yeet/lib/identity"
)

// Caller is the verified sender of a request.
type Caller struct {
	Identity  identity.Identity
	PublicKey ed25519.PublicKey
}

// ActionFunc handles one action. body is the CBOR body of the request
// (possibly empty). A nil result produces a response without data.
type ActionFunc func(ctx context.Context, caller Caller, body []byte) (any, error)

// Response is the signed reply to a request.
type Response struct {
	OK      bool             `cbor:"1,keyasint"`
	Code    string           `cbor:"2,keyasint,omitempty"`
	Error   string           `cbor:"3,keyasint,omitempty"`
	Data    codec.RawMessage `cbor:"4,keyasint,omitempty"`
	Request []byte           `cbor:"5,keyasint"`
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// SigningKey signs every response. Clients verify responses with
	// its public half.
	SigningKey ed25519.PrivateKey

	// Skew bounds request freshness. Zero means envelope.DefaultSkew.
	Skew time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server dispatches verified requests to registered actions. Register
// every action with Handle before calling Serve.
type Server struct {
	signingKey ed25519.PrivateKey
	skew       time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	handlers   map[string]ActionFunc

	activeConnections sync.WaitGroup
}

// NewServer returns a server with no actions registered.
func NewServer(config ServerConfig) *Server {
	if config.Skew == 0 {
		config.Skew = envelope.DefaultSkew
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		signingKey: config.SigningKey,
		skew:       config.Skew,
		clock:      config.Clock,
		logger:     config.Logger,
		handlers:   make(map[string]ActionFunc),
	}
}

// Handle registers handler for action. Panics on a duplicate.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Listen opens a listener for address: "unix:<path>" for a Unix socket
// (a stale socket file is removed first) or a TCP "host:port".
func Listen(address string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(address, "unix:"); ok {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
		}
		listener, err := net.Listen("unix", path)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", path, err)
		}
		return listener, nil
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return listener, nil
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests to finish. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("server listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 4 * 1024 * 1024
)

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var sealed []byte
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&sealed); err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("unreadable request", "remote", conn.RemoteAddr().String(), "error", err)
		}
		return
	}

	verified, err := envelope.Open(sealed, s.clock.Now(), s.skew)
	if err != nil {
		s.logger.Warn("rejected request", "remote", conn.RemoteAddr().String(), "error", err)
		s.write(conn, Response{Code: CodeAuth, Error: "request authentication failed"}, sealed)
		return
	}

	handler, exists := s.handlers[verified.Action]
	if !exists {
		s.write(conn, Response{Code: CodeBadAction, Error: fmt.Sprintf("unknown action %q", verified.Action)}, sealed)
		return
	}

	caller := Caller{Identity: verified.Caller, PublicKey: verified.PublicKey}
	result, err := handler(ctx, caller, verified.Body)
	if err != nil {
		s.write(conn, s.failure(verified.Action, caller, err), sealed)
		return
	}

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.logger.Error("encoding response", "action", verified.Action, "error", err)
			s.write(conn, Response{Code: CodeInternal, Error: "internal error"}, sealed)
			return
		}
		response.Data = data
	}
	s.write(conn, response, sealed)
}

// failure maps a handler error to a response. Only *ServiceError
// messages reach the client.
func (s *Server) failure(action string, caller Caller, err error) Response {
	var serviceError *ServiceError
	if errors.As(err, &serviceError) {
		s.logger.Info("action refused",
			"action", action,
			"caller", caller.Identity.Short(),
			"code", serviceError.Code,
			"error", serviceError.Message,
		)
		return Response{Code: serviceError.Code, Error: serviceError.Message, Data: serviceError.Data}
	}
	s.logger.Error("action failed",
		"action", action,
		"caller", caller.Identity.Short(),
		"error", err,
	)
	return Response{Code: CodeInternal, Error: "internal error"}
}

func (s *Server) write(conn net.Conn, response Response, request []byte) {
	digest := envelope.Digest(request)
	response.Request = digest[:]

	payload, err := codec.Marshal(response)
	if err != nil {
		s.logger.Error("encoding response", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(envelope.SealResponse(s.signingKey, payload)); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
