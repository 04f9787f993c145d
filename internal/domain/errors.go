package domain

import "errors"

// Sentinel errors for relation store operations.
var (
	// ErrInvalidConfig is returned by Start when the backend configuration cannot be used (e.g. no node addresses).
	ErrInvalidConfig = errors.New("invalid backend configuration")
	// ErrNotStarted is returned when a resource-bound backend is used before Start or after Shutdown.
	ErrNotStarted = errors.New("relation store not started")
	// ErrBackend wraps failures of the external store. It never means "no data".
	ErrBackend = errors.New("relation store backend failure")
	// ErrInvalidInput is returned for empty item or tag identifiers.
	ErrInvalidInput = errors.New("invalid input")
)
