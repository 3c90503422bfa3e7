// Package lock provides a cooperative, resource-scoped distributed lock
// backed by the persistent store. Locks are advisory and TTL-bounded: an
// orphaned lock self-expires once its deadline passes. There is no
// in-process state, so mutual exclusion holds across service replicas and
// process restarts.
package lock

import (
	"context"
	"time"
)

// Manager grants and inspects short-lived exclusive holds on named resources.
type Manager interface {
	// Acquire attempts a single non-blocking grab of resource for ttl.
	// It returns a non-nil Handle on success and (nil, nil) when an
	// unexpired lock is already held by someone else; the nil handle is
	// the expected "try later" signal, not an error. Errors are storage
	// faults only.
	Acquire(ctx context.Context, resource string, ttl time.Duration) (*Handle, error)

	// IsActive reports whether an unexpired lock row exists for resource.
	IsActive(ctx context.Context, resource string) (bool, error)
}

// Handle is the sole capability to release an acquired lock. Callers must
// release on every exit path of the guarded operation, typically via defer.
// A handle belongs to the goroutine that acquired it.
type Handle struct {
	resource string
	release  func(ctx context.Context)
	released bool
}

// NewHandle wraps a release action in a handle. Used by Manager
// implementations and by test fakes.
func NewHandle(resource string, release func(ctx context.Context)) *Handle {
	return &Handle{resource: resource, release: release}
}

// Resource returns the name the handle was acquired for.
func (h *Handle) Resource() string { return h.resource }

// Release deletes the lock row. It is idempotent and never fails: a missing
// row or a storage fault is logged by the manager and otherwise ignored, so
// deferred releases cannot mask the guarded operation's own error.
func (h *Handle) Release(ctx context.Context) {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.release(ctx)
}
