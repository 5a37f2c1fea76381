// Package common defines shared sentinel errors and small helpers used across
// CloudKeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorInvalidName   = errors.New("invalid name")

	// Session-level errors.
	ErrorUnauthenticated = errors.New("unauthenticated")

	// Configuration errors.
	ErrorInvalidConfig = errors.New("invalid config")
)
