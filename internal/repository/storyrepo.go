// Package repository declares the persistence interfaces consumed by services.
package repository

import (
	"context"

	"github.com/0xSifu/ioh-stories/internal/model"
	"github.com/gofrs/uuid/v5"
)

// StoryRepository owns the Story and VersionRecord lifecycles. Every
// mutation writes the story row and a matching version-log row in one
// transaction; the append-only log is the source of truth for conflict
// detection.
type StoryRepository interface {
	// Create persists a new story (version 0) with its media rows and the
	// initial version record atomically.
	Create(ctx context.Context, story *model.Story) error

	// Update applies a patch under optimistic concurrency: it fails with
	// errs.ErrNotFound when the story is absent and errs.ErrVersionConflict
	// when the patch's base version or the version log disagree with the
	// story's current version. On success the version is incremented and a
	// new version record appended.
	Update(ctx context.Context, id uuid.UUID, patch model.StoryPatch) (*model.Story, error)

	// Delete removes the story and its media rows, returning the deleted
	// story. The version log is retained for audit.
	Delete(ctx context.Context, id uuid.UUID) (*model.Story, error)

	// GetByID returns a single story with media, expired or not.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Story, error)

	// ListActive returns unexpired stories, newest first.
	ListActive(ctx context.Context) ([]model.Story, error)

	// ListActiveByAuthors returns unexpired stories by the given authors,
	// newest first. An empty author set yields an empty result.
	ListActiveByAuthors(ctx context.Context, authorIDs []uuid.UUID) ([]model.Story, error)

	// Versions returns the append-only version log for a story, oldest first.
	Versions(ctx context.Context, id uuid.UUID) ([]model.VersionRecord, error)
}
