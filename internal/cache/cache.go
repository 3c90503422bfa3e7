// Package cache provides the cache-aside layer in front of the record
// store: read-through on miss, explicit invalidation after every
// successful write. The cache is subordinate and disposable; the system
// stays correct with the cache cleared at any time, so every cache fault
// degrades to a store read instead of failing the request.
package cache

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Store defines the basic operations for a cache backend.
//
// T represents the type of values stored under this store's keys.
type Store[T any] interface {
	// Get retrieves a value for the given key. The boolean return
	// indicates whether the key was found.
	Get(ctx context.Context, key string) (T, bool, error)
	// Set stores the value for the given key for the specified TTL.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	// Invalidate removes the keys from the cache. Absent keys are no-ops.
	Invalidate(ctx context.Context, keys ...string) error
}

// AllStoriesKey caches the unexpired-stories collection.
const AllStoriesKey = "stories:all"

// StoryKey caches a single story by id.
func StoryKey(id uuid.UUID) string { return "story:" + id.String() }

// FollowedKey caches a user's followed-stories feed.
func FollowedKey(userID uuid.UUID) string { return "stories:followed:" + userID.String() }
