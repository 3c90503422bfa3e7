package repository

import (
	"context"

	"github.com/0xSifu/ioh-stories/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FollowRepository stores the unversioned follower relation used to
// compute per-user story feeds.
type FollowRepository interface {
	// Create inserts a follow; errs.ErrAlreadyExists on a duplicate pair.
	Create(ctx context.Context, follow *model.Follow) error

	// Delete removes a follow by id, returning the deleted relation.
	Delete(ctx context.Context, id uuid.UUID) (*model.Follow, error)

	// GetByID returns a single follow.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Follow, error)

	// ListAll returns every follow relation.
	ListAll(ctx context.Context) ([]model.Follow, error)

	// ListFollowing returns the user ids the given follower follows.
	ListFollowing(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error)
}
