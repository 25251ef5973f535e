// Package service implements the tracker's commands and queries: the
// token session lifecycle, account activation, the per-object
// authorization policy and the project/task operations it gates.
package service

import (
	"errors"
	"fmt"
)

// Error kinds returned across the service boundary. The transport layer
// maps each to a status code.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrEmailInUse             = errors.New("email already in use")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountInactive        = errors.New("account is not active")
	ErrInvalidActivationToken = errors.New("invalid or expired activation token")
	ErrValidation             = errors.New("validation failed")
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
