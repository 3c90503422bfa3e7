// Package service orchestrates the concurrency-safe mutation path: every
// write runs as lock acquire -> transactional check-and-write -> cache
// invalidation -> notification emit -> lock release, with the release on
// every exit path.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/0xSifu/ioh-stories/internal/cache"
	"github.com/0xSifu/ioh-stories/internal/errs"
	"github.com/0xSifu/ioh-stories/internal/lock"
	"github.com/0xSifu/ioh-stories/internal/model"
	"github.com/0xSifu/ioh-stories/internal/repository"
)

// Notifier is the fire-and-forget event sink mutations report to.
// Implemented by notify.Dispatcher.
type Notifier interface {
	Emit(event model.Event)
}

// StoryService defines the operations the transport layer calls.
type StoryService interface {
	// Create makes a new story with version 0 and a 24h visibility window.
	// Concurrent creates by the same user are bounded by a per-user lock.
	Create(ctx context.Context, input model.StoryInput) (*model.Story, error)
	// Update applies a patch under the per-story lock and optimistic
	// concurrency; stale base versions lose with ErrVersionConflict.
	Update(ctx context.Context, id uuid.UUID, patch model.StoryPatch) (*model.Story, error)
	// Delete removes a story under the same per-story lock Update uses, so
	// a racing update observes ErrNotFound once the delete commits.
	Delete(ctx context.Context, id uuid.UUID) (*model.Story, error)
	// Get returns a single unexpired story, read through the cache.
	Get(ctx context.Context, id uuid.UUID) (*model.Story, error)
	// ListAll returns all unexpired stories, read through the cache.
	ListAll(ctx context.Context) ([]model.Story, error)
	// ListFollowed returns unexpired stories by the users userID follows.
	ListFollowed(ctx context.Context, userID uuid.UUID) ([]model.Story, error)
	// Versions returns a story's append-only version log.
	Versions(ctx context.Context, id uuid.UUID) ([]model.VersionRecord, error)
}

// Defaults for the tunables in Config.
const (
	DefaultLockTTL  = 30 * time.Second
	DefaultCacheTTL = time.Hour
)

// Config carries the service tunables; zero values pick the defaults.
type Config struct {
	// LockTTL bounds how long an orphaned lock outlives its holder.
	LockTTL time.Duration
	// StoryTTL is the visibility window stamped on new stories.
	StoryTTL time.Duration
	// CacheTTL caps cache entry lifetimes; entries are additionally
	// clamped to the remaining expiry of what they hold.
	CacheTTL time.Duration
}

func (c *Config) withDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.StoryTTL <= 0 {
		c.StoryTTL = model.DefaultStoryTTL
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

type StoryServiceImpl struct {
	stories    repository.StoryRepository
	follows    repository.FollowRepository
	locks      lock.Manager
	storyCache *cache.Coordinator[*model.Story]
	listCache  *cache.Coordinator[[]model.Story]
	notifier   Notifier
	logger     *zap.Logger
	cfg        Config
}

// NewStoryService constructs the story service.
func NewStoryService(
	stories repository.StoryRepository,
	follows repository.FollowRepository,
	locks lock.Manager,
	storyCache *cache.Coordinator[*model.Story],
	listCache *cache.Coordinator[[]model.Story],
	notifier Notifier,
	logger *zap.Logger,
	cfg Config,
) *StoryServiceImpl {
	cfg.withDefaults()
	return &StoryServiceImpl{
		stories:    stories,
		follows:    follows,
		locks:      locks,
		storyCache: storyCache,
		listCache:  listCache,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// Lock resource names. Update and Delete share one name per story so the
// two operations serialize against each other.
func createResource(userID uuid.UUID) string { return "story-create-" + userID.String() }
func writeResource(id uuid.UUID) string      { return "story-update-" + id.String() }

// Create inserts a story at version 0 inside the per-user creation lock.
func (s *StoryServiceImpl) Create(ctx context.Context, input model.StoryInput) (*model.Story, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	if input.Content == "" {
		return nil, errors.New("validation: empty content")
	}

	h, err := s.locks.Acquire(ctx, createResource(input.UserID), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire create lock: %w", err)
	}
	if h == nil {
		return nil, errs.ErrLockUnavailable
	}
	defer h.Release(ctx)

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	story := &model.Story{
		ID:        id,
		UserID:    input.UserID,
		Content:   input.Content,
		Media:     append([]string{}, input.Media...),
		Version:   0,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.StoryTTL),
		UpdatedAt: now,
	}
	if err := s.stories.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}

	s.invalidateFor(ctx, story)
	s.notifier.Emit(model.Event{
		Kind:    model.EventStoryCreated,
		UserID:  story.UserID,
		StoryID: story.ID,
		Message: "New story created: " + story.Content,
	})
	s.logger.Info("story created",
		zap.Stringer("storyId", story.ID),
		zap.Stringer("userId", story.UserID),
	)
	return story, nil
}

// Update applies a patch inside the per-story write lock.
func (s *StoryServiceImpl) Update(ctx context.Context, id uuid.UUID, patch model.StoryPatch) (*model.Story, error) {
	if id == uuid.Nil {
		return nil, errors.New("validation: empty id")
	}
	if patch.BaseVersion < 0 {
		return nil, errors.New("validation: negative base version")
	}

	h, err := s.locks.Acquire(ctx, writeResource(id), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire write lock: %w", err)
	}
	if h == nil {
		return nil, errs.ErrLockUnavailable
	}
	defer h.Release(ctx)

	story, err := s.stories.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.invalidateFor(ctx, story)
	s.notifier.Emit(model.Event{
		Kind:    model.EventStoryUpdated,
		UserID:  story.UserID,
		StoryID: story.ID,
		Message: "Story updated: " + story.Content,
	})
	s.logger.Info("story updated",
		zap.Stringer("storyId", story.ID),
		zap.Int64("version", story.Version),
	)
	return story, nil
}

// Delete removes a story inside the same per-story lock Update uses.
func (s *StoryServiceImpl) Delete(ctx context.Context, id uuid.UUID) (*model.Story, error) {
	if id == uuid.Nil {
		return nil, errors.New("validation: empty id")
	}

	h, err := s.locks.Acquire(ctx, writeResource(id), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire write lock: %w", err)
	}
	if h == nil {
		return nil, errs.ErrLockUnavailable
	}
	defer h.Release(ctx)

	story, err := s.stories.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	s.invalidateFor(ctx, story)
	s.notifier.Emit(model.Event{
		Kind:    model.EventStoryDeleted,
		UserID:  story.UserID,
		StoryID: story.ID,
		Message: "Story deleted",
	})
	s.logger.Info("story deleted", zap.Stringer("storyId", story.ID))
	return story, nil
}

// Get reads a single story through the cache. Expired stories are absent.
// The cache entry's TTL is clamped to the story's remaining expiry so it
// can never serve an expired story as live.
func (s *StoryServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Story, error) {
	if id == uuid.Nil {
		return nil, errors.New("validation: empty id")
	}
	story, err := s.storyCache.GetOrComputeTTL(ctx, cache.StoryKey(id),
		func(ctx context.Context) (*model.Story, time.Duration, error) {
			st, err := s.stories.GetByID(ctx, id)
			if err != nil {
				return nil, 0, err
			}
			now := time.Now()
			if st.Expired(now) {
				return nil, 0, errs.ErrNotFound
			}
			return st, clampTTL(s.cfg.CacheTTL, st.ExpiresAt.Sub(now)), nil
		})
	if err != nil {
		return nil, err
	}
	// A hit may predate the story's expiry.
	if story.Expired(time.Now()) {
		return nil, errs.ErrNotFound
	}
	return story, nil
}

// ListAll reads the unexpired-stories collection through the cache.
func (s *StoryServiceImpl) ListAll(ctx context.Context) ([]model.Story, error) {
	out, err := s.listCache.GetOrComputeTTL(ctx, cache.AllStoriesKey,
		func(ctx context.Context) ([]model.Story, time.Duration, error) {
			items, err := s.stories.ListActive(ctx)
			if err != nil {
				return nil, 0, err
			}
			return items, feedTTL(s.cfg.CacheTTL, items, time.Now()), nil
		})
	if err != nil {
		return nil, err
	}
	return dropExpired(out, time.Now()), nil
}

// ListFollowed returns the feed of stories by users userID follows, read
// through a per-user cache. When cached entries have expired since they
// were stored, the feed is refreshed by merging the still-live cached
// entries with a fresh query; the refreshed entry's TTL is the minimum
// remaining time-to-expiry among its items.
func (s *StoryServiceImpl) ListFollowed(ctx context.Context, userID uuid.UUID) ([]model.Story, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	key := cache.FollowedKey(userID)
	now := time.Now()

	if cached, ok := s.listCache.Lookup(ctx, key); ok {
		live := dropExpired(cached, now)
		if len(live) == len(cached) {
			return live, nil
		}
		fresh, err := s.queryFollowed(ctx, userID)
		if err != nil {
			return nil, err
		}
		merged := mergeStories(live, fresh)
		s.listCache.Store(ctx, key, merged, feedTTL(s.cfg.CacheTTL, merged, now))
		return merged, nil
	}

	fresh, err := s.queryFollowed(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.listCache.Store(ctx, key, fresh, feedTTL(s.cfg.CacheTTL, fresh, now))
	return fresh, nil
}

// Versions exposes the audit log; reads bypass the cache.
func (s *StoryServiceImpl) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionRecord, error) {
	if id == uuid.Nil {
		return nil, errors.New("validation: empty id")
	}
	return s.stories.Versions(ctx, id)
}

func (s *StoryServiceImpl) queryFollowed(ctx context.Context, userID uuid.UUID) ([]model.Story, error) {
	authors, err := s.follows.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	items, err := s.stories.ListActiveByAuthors(ctx, authors)
	if err != nil {
		return nil, fmt.Errorf("list stories by authors: %w", err)
	}
	return items, nil
}

// invalidateFor clears the story's own key plus the aggregate keys whose
// contents could include it. Only the mutating user's own feed key is
// cleared; follower feeds converge via TTL.
func (s *StoryServiceImpl) invalidateFor(ctx context.Context, story *model.Story) {
	s.storyCache.Invalidate(ctx, cache.StoryKey(story.ID))
	s.listCache.Invalidate(ctx, cache.AllStoriesKey, cache.FollowedKey(story.UserID))
}

// clampTTL caps ttl at remaining, never below zero.
func clampTTL(ttl, remaining time.Duration) time.Duration {
	if remaining < ttl {
		ttl = remaining
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

// feedTTL caps ttl at the minimum remaining time-to-expiry among items.
func feedTTL(ttl time.Duration, items []model.Story, now time.Time) time.Duration {
	for i := range items {
		ttl = clampTTL(ttl, items[i].ExpiresAt.Sub(now))
	}
	return ttl
}

func dropExpired(items []model.Story, now time.Time) []model.Story {
	out := make([]model.Story, 0, len(items))
	for i := range items {
		if !items[i].Expired(now) {
			out = append(out, items[i])
		}
	}
	return out
}

// mergeStories combines two story sets, de-duplicated by id (fresh wins)
// and sorted by creation time, newest first.
func mergeStories(cached, fresh []model.Story) []model.Story {
	seen := make(map[uuid.UUID]struct{}, len(fresh))
	out := make([]model.Story, 0, len(cached)+len(fresh))
	for _, s := range fresh {
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	for _, s := range cached {
		if _, ok := seen[s.ID]; !ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
