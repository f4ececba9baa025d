// Package pkg holds utilities shared across the project.
// This file defines the domain-level error taxonomy.
//
// Errors are plain sentinel values so callers compare by identity:
//
//	if errors.Is(err, pkg.ErrUnauthorized) { ... }
//
// The HTTP layer maps each sentinel to a status code (see response.go).
// Services never hand raw driver or codec errors to handlers; they translate
// them into one of these kinds first.
package pkg

import (
	"errors"
	"fmt"
)

// Domain-level errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrThrottled     = errors.New("too many requests")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")
)

// CodedError attaches a machine-readable code and a translation key to one of
// the sentinel kinds above. errors.Is still matches the kind through Unwrap.
//
//	return pkg.NewCodedError(pkg.ErrUnauthorized, "INVALID_CREDENTIALS", "errors.invalidCredentials")
type CodedError struct {
	Kind       error
	Code       string
	MessageKey string
}

// NewCodedError builds a CodedError for the given kind.
func NewCodedError(kind error, code, messageKey string) *CodedError {
	return &CodedError{Kind: kind, Code: code, MessageKey: messageKey}
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Code)
}

func (e *CodedError) Unwrap() error { return e.Kind }
