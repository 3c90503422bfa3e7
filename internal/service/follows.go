package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/0xSifu/ioh-stories/internal/cache"
	"github.com/0xSifu/ioh-stories/internal/model"
	"github.com/0xSifu/ioh-stories/internal/repository"
)

// FollowService manages the follower relation behind the story feed.
// Follows are unversioned and need no lock; the only coupling to the
// concurrency core is feed-cache invalidation.
type FollowService interface {
	Follow(ctx context.Context, followerID, followingID uuid.UUID) (*model.Follow, error)
	Unfollow(ctx context.Context, id uuid.UUID) (*model.Follow, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Follow, error)
	List(ctx context.Context) ([]model.Follow, error)
	ListFollowing(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error)
}

type FollowServiceImpl struct {
	follows   repository.FollowRepository
	listCache *cache.Coordinator[[]model.Story]
	notifier  Notifier
	logger    *zap.Logger
}

// NewFollowService constructs the follow service.
func NewFollowService(
	follows repository.FollowRepository,
	listCache *cache.Coordinator[[]model.Story],
	notifier Notifier,
	logger *zap.Logger,
) *FollowServiceImpl {
	return &FollowServiceImpl{
		follows:   follows,
		listCache: listCache,
		notifier:  notifier,
		logger:    logger,
	}
}

// Follow creates the relation and notifies the followed user. The
// follower's own feed cache is cleared since its author set just changed.
func (s *FollowServiceImpl) Follow(ctx context.Context, followerID, followingID uuid.UUID) (*model.Follow, error) {
	if followerID == uuid.Nil || followingID == uuid.Nil {
		return nil, errors.New("validation: empty followerID/followingID")
	}
	if followerID == followingID {
		return nil, errors.New("validation: cannot follow yourself")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	follow := &model.Follow{
		ID:          id,
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.follows.Create(ctx, follow); err != nil {
		return nil, fmt.Errorf("create follow: %w", err)
	}

	s.listCache.Invalidate(ctx, cache.FollowedKey(followerID))
	s.notifier.Emit(model.Event{
		Kind:    model.EventNewFollower,
		UserID:  followingID,
		Message: "You have a new follower!",
	})
	s.logger.Info("follow created",
		zap.Stringer("followerId", followerID),
		zap.Stringer("followingId", followingID),
	)
	return follow, nil
}

// Unfollow removes the relation and clears the follower's feed cache.
func (s *FollowServiceImpl) Unfollow(ctx context.Context, id uuid.UUID) (*model.Follow, error) {
	if id == uuid.Nil {
		return nil, errors.New("validation: empty id")
	}
	follow, err := s.follows.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.listCache.Invalidate(ctx, cache.FollowedKey(follow.FollowerID))
	s.logger.Info("follow deleted", zap.Stringer("followId", follow.ID))
	return follow, nil
}

// Get returns a single follow relation.
func (s *FollowServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Follow, error) {
	if id == uuid.Nil {
		return nil, errors.New("validation: empty id")
	}
	return s.follows.GetByID(ctx, id)
}

// List returns every follow relation.
func (s *FollowServiceImpl) List(ctx context.Context) ([]model.Follow, error) {
	return s.follows.ListAll(ctx)
}

// ListFollowing returns the ids the follower follows.
func (s *FollowServiceImpl) ListFollowing(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error) {
	if followerID == uuid.Nil {
		return nil, errors.New("validation: empty followerID")
	}
	return s.follows.ListFollowing(ctx, followerID)
}
