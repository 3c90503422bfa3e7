package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/0xSifu/ioh-stories/internal/errs"
	"github.com/0xSifu/ioh-stories/internal/model"
)

// FollowRepo implements FollowRepository using PostgreSQL.
type FollowRepo struct{ db *DB }

// NewFollowRepo constructs a follow repository.
func NewFollowRepo(db *DB) *FollowRepo { return &FollowRepo{db: db} }

// Create inserts a new follow row.
func (r *FollowRepo) Create(ctx context.Context, f *model.Follow) error {
	const q = `
INSERT INTO follows (id, follower_id, following_id, created_at)
VALUES ($1,$2,$3,$4)`
	_, err := r.db.Pool.Exec(ctx, q, f.ID, f.FollowerID, f.FollowingID, f.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Delete removes a follow by id and returns the deleted relation.
func (r *FollowRepo) Delete(ctx context.Context, id uuid.UUID) (*model.Follow, error) {
	const q = `
DELETE FROM follows WHERE id=$1
RETURNING id, follower_id, following_id, created_at`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var f model.Follow
	if err := row.Scan(&f.ID, &f.FollowerID, &f.FollowingID, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// GetByID selects a follow by id.
func (r *FollowRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Follow, error) {
	const q = `
SELECT id, follower_id, following_id, created_at
FROM follows WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var f model.Follow
	if err := row.Scan(&f.ID, &f.FollowerID, &f.FollowingID, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// ListAll returns every follow relation.
func (r *FollowRepo) ListAll(ctx context.Context) ([]model.Follow, error) {
	const q = `
SELECT id, follower_id, following_id, created_at
FROM follows ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Follow{}
	for rows.Next() {
		var f model.Follow
		if err = rows.Scan(&f.ID, &f.FollowerID, &f.FollowingID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFollowing returns the user ids the follower follows.
func (r *FollowRepo) ListFollowing(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT following_id FROM follows WHERE follower_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, followerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
