// Package repository defines the persistence contracts used by the
// service layer and their MySQL and Redis implementations. The sentinel
// values below let higher layers distinguish failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
// Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a user is inserted with an email that
// is already registered.
var ErrEmailExists = errors.New("email already exists")
