// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"

	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/session"
)

// Server is the agent's view of the yeet server.
type Server interface {
	// Check reports the running system and returns what to do next.
	Check(ctx context.Context, currentStorePath string) (session.CheckResponse, error)

	// RequestSecrets asks for the named secrets sealed to this host. A
	// denied batch is a *session.PartialAccessDenied.
	RequestSecrets(ctx context.Context, ticket []byte, names []string) (map[string][]byte, error)
}

// ServerClient provides typed access to the update actions of a yeet
// server. Each method maps to a single action.
type ServerClient struct {
	client *service.Client
}

// NewServerClient wraps a client signing with the host key.
func NewServerClient(client *service.Client) *ServerClient {
	return &ServerClient{client: client}
}

// Check calls the "check" action.
func (c *ServerClient) Check(ctx context.Context, currentStorePath string) (session.CheckResponse, error) {
	var response session.CheckResponse
	if err := c.client.Call(ctx, session.ActionCheck, session.CheckRequest{CurrentStorePath: currentStorePath}, &response); err != nil {
		return session.CheckResponse{}, err
	}
	return response, nil
}

// RequestSecrets calls the "secret.request" action. A partial denial
// is returned as *session.PartialAccessDenied; any response missing a
// requested name is an error.
func (c *ServerClient) RequestSecrets(ctx context.Context, ticket []byte, names []string) (map[string][]byte, error) {
	var response session.SecretBatchResponse
	err := c.client.Call(ctx, session.ActionSecretRequest, session.SecretBatchRequest{Ticket: ticket, Names: names}, &response)
	if partial, ok := session.PartialFromError(err); ok {
		return nil, partial
	}
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if _, ok := response.Secrets[name]; !ok {
			return nil, fmt.Errorf("server response lacks secret %q", name)
		}
	}
	return response.Secrets, nil
}
