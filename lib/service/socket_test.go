// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/testutil"
)

type echoRequest struct {
	Message string `cbor:"1,keyasint"`
}

type echoResponse struct {
	Message string            `cbor:"1,keyasint"`
	Caller  identity.Identity `cbor:"2,keyasint"`
}

func testKey(t *testing.T) *identity.Key {
	t.Helper()
	key, err := identity.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

// startServer serves on a Unix socket in a temp dir and returns its
// address and the server's signing key.
func startServer(t *testing.T, register func(*Server)) (string, *identity.Key) {
	t.Helper()
	serverKey := testKey(t)
	server := NewServer(ServerConfig{SigningKey: serverKey.PrivateKey()})
	register(server)

	address := "unix:" + filepath.Join(testutil.SocketDir(t), "yeet.sock")
	listener, err := Listen(address)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}

	testutil.Background(t, func(ctx context.Context) error {
		return server.Serve(ctx, listener)
	})
	return address, serverKey
}

func TestCallRoundTrip(t *testing.T) {
	address, serverKey := startServer(t, func(server *Server) {
		server.Handle("echo", func(_ context.Context, caller Caller, body []byte) (any, error) {
			var request echoRequest
			if err := codec.Unmarshal(body, &request); err != nil {
				return nil, Errorf(CodeInvalid, "bad body: %v", err)
			}
			return echoResponse{Message: request.Message, Caller: caller.Identity}, nil
		})
	})
	clientKey := testKey(t)
	client := NewClient(address, clientKey, serverKey.Public())

	var response echoResponse
	if err := client.Call(context.Background(), "echo", echoRequest{Message: "hi"}, &response); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if response.Message != "hi" {
		t.Errorf("Message = %q, want hi", response.Message)
	}
	if response.Caller != clientKey.Identity() {
		t.Errorf("Caller = %s, want %s", response.Caller, clientKey.Identity())
	}
}

func TestCallErrors(t *testing.T) {
	address, serverKey := startServer(t, func(server *Server) {
		server.Handle("deny", func(context.Context, Caller, []byte) (any, error) {
			return nil, Denied()
		})
		server.Handle("crash", func(context.Context, Caller, []byte) (any, error) {
			return nil, errors.New("database path /var/lib/yeet leaked")
		})
	})
	client := NewClient(address, testKey(t), serverKey.Public())
	ctx := context.Background()

	if err := client.Call(ctx, "deny", nil, nil); !IsCode(err, CodeDenied) {
		t.Errorf("Call(deny) error = %v, want code %s", err, CodeDenied)
	}

	err := client.Call(ctx, "crash", nil, nil)
	if !IsCode(err, CodeInternal) {
		t.Fatalf("Call(crash) error = %v, want code %s", err, CodeInternal)
	}
	var serviceError *ServiceError
	errors.As(err, &serviceError)
	if serviceError.Message != "internal error" {
		t.Errorf("internal error message = %q, want it redacted", serviceError.Message)
	}

	if err := client.Call(ctx, "missing", nil, nil); !IsCode(err, CodeBadAction) {
		t.Errorf("Call(missing) error = %v, want code %s", err, CodeBadAction)
	}
}

func TestCallRejectsForeignServerKey(t *testing.T) {
	address, _ := startServer(t, func(server *Server) {
		server.Handle("ping", func(context.Context, Caller, []byte) (any, error) { return nil, nil })
	})
	client := NewClient(address, testKey(t), testKey(t).Public())

	err := client.Call(context.Background(), "ping", nil, nil)
	if err == nil {
		t.Fatal("Call() accepted a response signed by an unexpected key")
	}
	var serviceError *ServiceError
	if errors.As(err, &serviceError) {
		t.Errorf("Call() error = %v, want a verification error", err)
	}
}

func TestHandleDuplicatePanics(t *testing.T) {
	server := NewServer(ServerConfig{SigningKey: testKey(t).PrivateKey()})
	handler := func(context.Context, Caller, []byte) (any, error) { return nil, nil }
	server.Handle("a", handler)
	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	server.Handle("a", handler)
}
