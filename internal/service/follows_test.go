package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xSifu/ioh-stories/internal/cache"
	"github.com/0xSifu/ioh-stories/internal/errs"
	"github.com/0xSifu/ioh-stories/internal/model"
)

type followEnv struct {
	svc       *FollowServiceImpl
	follows   *memFollows
	listStore *memStore[[]model.Story]
	listCache *cache.Coordinator[[]model.Story]
	notifier  *captureNotifier
}

func newFollowEnv(t *testing.T) *followEnv {
	t.Helper()
	env := &followEnv{
		follows:   newMemFollows(),
		listStore: newMemStore[[]model.Story](),
		notifier:  &captureNotifier{},
	}
	logger := zap.NewNop()
	env.listCache = cache.NewCoordinator[[]model.Story](env.listStore, logger)
	env.svc = NewFollowService(env.follows, env.listCache, env.notifier, logger)
	return env
}

func TestFollowService_Follow_OK(t *testing.T) {
	env := newFollowEnv(t)
	ctx := context.Background()
	follower := uuid.Must(uuid.NewV4())
	following := uuid.Must(uuid.NewV4())

	// Prime the follower's feed cache so the invalidation is observable.
	env.listCache.Store(ctx, cache.FollowedKey(follower), []model.Story{}, time.Hour)

	follow, err := env.svc.Follow(ctx, follower, following)
	require.NoError(t, err)
	require.Equal(t, follower, follow.FollowerID)
	require.Equal(t, following, follow.FollowingID)

	require.False(t, env.listStore.has(cache.FollowedKey(follower)),
		"follower feed cache must be invalidated")

	events := env.notifier.kinds()
	require.Equal(t, []string{model.EventNewFollower}, events)
	require.Equal(t, following, env.notifier.events[0].UserID,
		"the followed user gets the notification")
}

func TestFollowService_Follow_Validation(t *testing.T) {
	env := newFollowEnv(t)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	_, err := env.svc.Follow(ctx, uuid.Nil, id)
	require.Error(t, err)

	_, err = env.svc.Follow(ctx, id, id)
	require.Error(t, err)
}

func TestFollowService_Follow_Duplicate(t *testing.T) {
	env := newFollowEnv(t)
	ctx := context.Background()
	follower := uuid.Must(uuid.NewV4())
	following := uuid.Must(uuid.NewV4())

	_, err := env.svc.Follow(ctx, follower, following)
	require.NoError(t, err)

	_, err = env.svc.Follow(ctx, follower, following)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestFollowService_Unfollow(t *testing.T) {
	env := newFollowEnv(t)
	ctx := context.Background()
	follower := uuid.Must(uuid.NewV4())
	following := uuid.Must(uuid.NewV4())

	follow, err := env.svc.Follow(ctx, follower, following)
	require.NoError(t, err)

	env.listCache.Store(ctx, cache.FollowedKey(follower), []model.Story{}, time.Hour)

	deleted, err := env.svc.Unfollow(ctx, follow.ID)
	require.NoError(t, err)
	require.Equal(t, follow.ID, deleted.ID)
	require.False(t, env.listStore.has(cache.FollowedKey(follower)))

	_, err = env.svc.Unfollow(ctx, follow.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFollowService_ListFollowing(t *testing.T) {
	env := newFollowEnv(t)
	ctx := context.Background()
	follower := uuid.Must(uuid.NewV4())
	a := uuid.Must(uuid.NewV4())
	b := uuid.Must(uuid.NewV4())

	_, err := env.svc.Follow(ctx, follower, a)
	require.NoError(t, err)
	_, err = env.svc.Follow(ctx, follower, b)
	require.NoError(t, err)

	ids, err := env.svc.ListFollowing(ctx, follower)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{a, b}, ids)
}
