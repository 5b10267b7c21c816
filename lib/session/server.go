// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"

	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/hoststore"
	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/secretstore"
	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/servicetoken"
	"github.com/yeet-rs/yeet/lib/tag"
)

// Register installs every session and administrative action on server.
func (h *Handler) Register(server *service.Server) {
	server.Handle(ActionCheck, typed(h.check))
	server.Handle(ActionSecretRequest, typed(h.secretRequest))

	server.Handle(ActionWhoami, bare(func(_ context.Context, caller service.Caller) (any, error) {
		return h.Whoami(caller), nil
	}))
	server.Handle(ActionServerKey, bare(func(_ context.Context, caller service.Caller) (any, error) {
		return h.ServerKey(caller)
	}))

	server.Handle(ActionSecretPut, typed(func(ctx context.Context, caller service.Caller, request SecretPutRequest) (any, error) {
		info, err := h.PutSecret(ctx, caller, request)
		if errors.Is(err, sealed.ErrDecryptionFailure) {
			return nil, service.Errorf(service.CodeInvalid, "ciphertext is not sealed to the server key")
		}
		return info, err
	}))
	server.Handle(ActionSecretRename, typed(func(ctx context.Context, caller service.Caller, request RenameRequest) (any, error) {
		return nil, h.RenameSecret(ctx, caller, request)
	}))
	server.Handle(ActionSecretRemove, typed(func(ctx context.Context, caller service.Caller, request NameRequest) (any, error) {
		return nil, h.RemoveSecret(ctx, caller, request)
	}))
	server.Handle(ActionSecretSetTags, typed(func(ctx context.Context, caller service.Caller, request SetTagsRequest) (any, error) {
		return nil, h.SetSecretTags(ctx, caller, request)
	}))
	server.Handle(ActionSecretList, bare(func(ctx context.Context, caller service.Caller) (any, error) {
		return h.ListSecrets(ctx, caller)
	}))

	server.Handle(ActionTagCreate, typed(func(ctx context.Context, caller service.Caller, request NameRequest) (any, error) {
		return h.CreateTag(ctx, caller, request)
	}))
	server.Handle(ActionTagDelete, typed(func(ctx context.Context, caller service.Caller, request NameRequest) (any, error) {
		return nil, h.DeleteTag(ctx, caller, request)
	}))
	server.Handle(ActionTagList, bare(func(_ context.Context, caller service.Caller) (any, error) {
		return h.ListTags(caller)
	}))
	server.Handle(ActionTagCreatable, typed(func(_ context.Context, caller service.Caller, request CreatableRequest) (any, error) {
		return h.CreatableTags(caller, request), nil
	}))

	server.Handle(ActionPolicyGrant, typed(func(ctx context.Context, caller service.Caller, request GrantRequest) (any, error) {
		return h.Grant(ctx, caller, request)
	}))
	server.Handle(ActionPolicyRevoke, typed(func(ctx context.Context, caller service.Caller, request RevokeRequest) (any, error) {
		return nil, h.Revoke(ctx, caller, request)
	}))
	server.Handle(ActionPolicyList, typed(func(_ context.Context, caller service.Caller, request PolicyListRequest) (any, error) {
		return h.ListPolicies(caller, request), nil
	}))

	server.Handle(ActionHostEnroll, typed(func(ctx context.Context, caller service.Caller, request EnrollRequest) (any, error) {
		return h.Enroll(ctx, caller, request)
	}))
	server.Handle(ActionHostRename, typed(func(ctx context.Context, caller service.Caller, request RenameRequest) (any, error) {
		return nil, h.RenameHost(ctx, caller, request)
	}))
	server.Handle(ActionHostSetTags, typed(func(ctx context.Context, caller service.Caller, request SetTagsRequest) (any, error) {
		return nil, h.SetHostTags(ctx, caller, request)
	}))
	server.Handle(ActionHostUpdate, typed(func(ctx context.Context, caller service.Caller, request HostUpdateRequest) (any, error) {
		return nil, h.UpdateHost(ctx, caller, request)
	}))
	server.Handle(ActionHostDetach, typed(func(ctx context.Context, caller service.Caller, request HostDetachRequest) (any, error) {
		return nil, h.DetachHost(ctx, caller, request)
	}))
	server.Handle(ActionHostRemove, typed(func(ctx context.Context, caller service.Caller, request NameRequest) (any, error) {
		return nil, h.RemoveHost(ctx, caller, request)
	}))
	server.Handle(ActionHostList, bare(func(ctx context.Context, caller service.Caller) (any, error) {
		return h.ListHosts(ctx, caller)
	}))
	server.Handle(ActionHostnameByKey, typed(func(ctx context.Context, caller service.Caller, request HostnameByKeyRequest) (any, error) {
		return h.HostnameByKey(ctx, caller, request)
	}))
}

func (h *Handler) check(ctx context.Context, caller service.Caller, request CheckRequest) (any, error) {
	session, err := h.Open(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.ResolveTarget(request.CurrentStorePath)
}

func (h *Handler) secretRequest(ctx context.Context, caller service.Caller, request SecretBatchRequest) (any, error) {
	session, err := h.Resume(ctx, caller, request.Ticket)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	secrets, err := session.RequestSecrets(ctx, request.Names)
	if err != nil {
		return nil, err
	}
	return SecretBatchResponse{Secrets: secrets}, nil
}

// typed decodes the request body into T and maps the handler's error to
// a wire error.
func typed[T any](fn func(ctx context.Context, caller service.Caller, request T) (any, error)) service.ActionFunc {
	return func(ctx context.Context, caller service.Caller, body []byte) (any, error) {
		var request T
		if len(body) > 0 {
			if err := codec.Unmarshal(body, &request); err != nil {
				return nil, service.Errorf(service.CodeInvalid, "malformed request: %v", err)
			}
		}
		result, err := fn(ctx, caller, request)
		if err != nil {
			return nil, wireError(err)
		}
		return result, nil
	}
}

func bare(fn func(ctx context.Context, caller service.Caller) (any, error)) service.ActionFunc {
	return typed(func(ctx context.Context, caller service.Caller, _ struct{}) (any, error) {
		return fn(ctx, caller)
	})
}

// wireError translates domain errors. Anything unrecognized stays as is
// and reaches the client as an internal error.
func wireError(err error) error {
	var serviceError *service.ServiceError
	if errors.As(err, &serviceError) {
		return err
	}
	var partial *PartialAccessDenied
	if errors.As(err, &partial) {
		data, encodeErr := codec.Marshal(partial.Names)
		if encodeErr != nil {
			return encodeErr
		}
		return &service.ServiceError{Code: service.CodePartialDenied, Message: partial.Error(), Data: data}
	}

	switch {
	case errors.Is(err, authorization.ErrUnauthorized),
		errors.Is(err, secretstore.ErrNotFound),
		errors.Is(err, hoststore.ErrNotFound):
		return service.Denied()
	case errors.Is(err, servicetoken.ErrTokenTooShort),
		errors.Is(err, servicetoken.ErrInvalidSignature),
		errors.Is(err, servicetoken.ErrTokenExpired),
		errors.Is(err, servicetoken.ErrHostMismatch),
		errors.Is(err, servicetoken.ErrTokenSpent),
		errors.Is(err, ErrTicketTarget):
		return service.Errorf(service.CodeDenied, "session ticket rejected: %v", err)
	case errors.Is(err, secretstore.ErrExists):
		return service.Errorf(service.CodeConflict, "%v", err)
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, secretstore.ErrInvalidName),
		errors.Is(err, authorization.ErrUnknownTag),
		errors.Is(err, tag.ErrNoTags),
		errors.Is(err, tag.ErrWildcardOnResource):
		return service.Errorf(service.CodeInvalid, "%v", err)
	}
	return err
}

// PartialFromError extracts the denied names from a failed
// secret.request call.
func PartialFromError(err error) (*PartialAccessDenied, bool) {
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) || serviceError.Code != service.CodePartialDenied {
		return nil, false
	}
	var names []string
	if len(serviceError.Data) > 0 {
		if decodeErr := codec.Unmarshal(serviceError.Data, &names); decodeErr != nil {
			return nil, false
		}
	}
	return &PartialAccessDenied{Names: names}, true
}
