// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (version log mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrLockUnavailable indicates the resource lock is held by another writer.
	// Retryable: the caller should back off and resubmit.
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., duplicate follow).
	ErrAlreadyExists = errors.New("already exists")
)
