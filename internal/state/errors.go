package state

import "errors"

// Sentinel errors for repository operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrRepositoryClosed indicates an operation was attempted after Close.
	ErrRepositoryClosed = errors.New("state repository closed")

	// ErrSchemaMissing indicates the persistent_state table is absent or
	// unreadable. Startup must refuse to continue.
	ErrSchemaMissing = errors.New("persistent_state schema missing")
)
