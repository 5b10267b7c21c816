// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/yeet-rs/yeet/lib/clock"
	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/envelope"
	"github.com/yeet-rs/yeet/lib/identity"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 60 * time.Second
	maxResponseSize     = 16 * 1024 * 1024
)

// Client sends signed requests to a server. Each Call opens a new
// connection.
type Client struct {
	address   string
	key       *identity.Key
	serverKey ed25519.PublicKey
	clock     clock.Clock
}

// NewClient returns a client signing with key and accepting only
// responses signed by serverKey. The key is borrowed.
func NewClient(address string, key *identity.Key, serverKey ed25519.PublicKey) *Client {
	return &Client{address: address, key: key, serverKey: serverKey, clock: clock.Real()}
}

// WithClock returns a copy of the client reading time from c.
func (c *Client) WithClock(clk clock.Clock) *Client {
	copied := *c
	copied.clock = clk
	return &copied
}

// Call sends body under action and decodes the response data into
// result (when both are non-nil). A failed response is returned as a
// *ServiceError.
func (c *Client) Call(ctx context.Context, action string, body any, result any) error {
	sealed, err := envelope.Seal(c.key, action, body, c.clock.Now())
	if err != nil {
		return err
	}

	signed, err := c.send(ctx, sealed)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.address, err)
	}
	payload, err := envelope.OpenResponse(c.serverKey, signed)
	if err != nil {
		return fmt.Errorf("verifying %q response: %w", action, err)
	}
	var response Response
	if err := codec.Unmarshal(payload, &response); err != nil {
		return fmt.Errorf("decoding %q response: %w", action, err)
	}
	if err := envelope.CheckDigest(sealed, response.Request); err != nil {
		return err
	}

	if !response.OK {
		return &ServiceError{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
			Data:    response.Data,
		}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response data: %w", action, err)
		}
	}
	return nil
}

// Dial connects to address using the same syntax as Listen.
func Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	if path, ok := strings.CutPrefix(address, "unix:"); ok {
		return dialer.DialContext(ctx, "unix", path)
	}
	return dialer.DialContext(ctx, "tcp", address)
}

func (c *Client) send(ctx context.Context, sealed []byte) ([]byte, error) {
	conn, err := Dial(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(sealed); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		closer.CloseWrite()
	}

	if _, ok := ctx.Deadline(); !ok {
		conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	}
	var signed []byte
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&signed); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return signed, nil
}
