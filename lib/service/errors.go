// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
)

// Error codes carried in a failed Response.
const (
	// CodeDenied covers both "not authorized" and "does not exist".
	CodeDenied = "denied"

	// CodePartialDenied means some of the requested secrets were
	// denied; Data carries the denied names.
	CodePartialDenied = "partial-denied"

	CodeInvalid   = "invalid"
	CodeConflict  = "conflict"
	CodeInternal  = "internal"
	CodeBadAction = "unknown-action"
	CodeAuth      = "authentication"
)

// ServiceError is a failure with a wire code. Handlers return it to
// control what the client sees; Call returns it for failed responses.
type ServiceError struct {
	Action  string
	Code    string
	Message string

	// Data is an optional CBOR payload (for CodePartialDenied, the
	// denied names).
	Data []byte
}

func (e *ServiceError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed (%s): %s", e.Action, e.Code, e.Message)
}

// Errorf returns a *ServiceError with the given code.
func Errorf(code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Denied is the single error a handler returns for both unauthorized
// access and missing resources.
func Denied() *ServiceError {
	return &ServiceError{Code: CodeDenied, Message: "access denied"}
}

// IsCode reports whether err is a *ServiceError with the given code.
func IsCode(err error, code string) bool {
	var serviceError *ServiceError
	return errors.As(err, &serviceError) && serviceError.Code == code
}
