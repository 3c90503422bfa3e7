// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DefaultStoryTTL is how long a story stays visible after creation.
const DefaultStoryTTL = 24 * time.Hour

// Story is a short-lived content record owned by a single user.
// Version must equal the most recent entry of the story's version log
// at all times; the log, not this field alone, decides write conflicts.
type Story struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Content   string
	Media     []string // ordered media URLs, replaced wholesale on update
	Version   int64    // monotonically increasing, starts at 0
	CreatedAt time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the story is past its visibility window at t.
func (s *Story) Expired(t time.Time) bool { return !s.ExpiresAt.After(t) }

// StoryInput carries the fields a caller supplies to create a story.
type StoryInput struct {
	UserID  uuid.UUID
	Content string
	Media   []string
}

// StoryPatch is a partial update with the caller's base version for
// optimistic concurrency. Nil fields are left untouched.
type StoryPatch struct {
	BaseVersion int64
	Content     *string
	Media       *[]string
}

// VersionRecord is one row of the append-only per-story version log,
// written in the same transaction as the story mutation it records.
type VersionRecord struct {
	StoryID   uuid.UUID
	Version   int64
	CreatedAt time.Time
}

// Follow is an unversioned follower relation used to compute story feeds.
type Follow struct {
	ID          uuid.UUID
	FollowerID  uuid.UUID
	FollowingID uuid.UUID
	CreatedAt   time.Time
}

// Event kinds emitted by the notification dispatcher.
const (
	EventStoryCreated = "story.created"
	EventStoryUpdated = "story.updated"
	EventStoryDeleted = "story.deleted"
	EventNewFollower  = "follow.created"
)

// Event is the opaque payload published on the notification channel after
// a successful mutation. Delivery is best-effort, at most once.
type Event struct {
	Kind      string    `json:"kind"`
	UserID    uuid.UUID `json:"userId"`
	StoryID   uuid.UUID `json:"storyId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
