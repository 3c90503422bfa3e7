package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/0xSifu/ioh-stories/internal/errs"
	"github.com/0xSifu/ioh-stories/internal/model"
)

// StoryRepo implements StoryRepository using PostgreSQL.
type StoryRepo struct{ db *DB }

// NewStoryRepo constructs a story repository.
func NewStoryRepo(db *DB) *StoryRepo { return &StoryRepo{db: db} }

const (
	insStory = `
INSERT INTO stories (id, user_id, content, version, created_at, expires_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	insMedia = `INSERT INTO story_media (story_id, position, url) VALUES ($1,$2,$3)`
	insVer   = `INSERT INTO version_records (story_id, version, created_at) VALUES ($1,$2,$3)`
	selMedia = `SELECT url FROM story_media WHERE story_id=$1 ORDER BY position`
	delMedia = `DELETE FROM story_media WHERE story_id=$1`
)

// Create persists the story, its media rows and the initial version record
// in one transaction: all rows commit or none do.
func (r *StoryRepo) Create(ctx context.Context, story *model.Story) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, insStory,
		story.ID, story.UserID, story.Content, story.Version,
		story.CreatedAt, story.ExpiresAt, story.UpdatedAt,
	); err != nil {
		return err
	}
	for i, url := range story.Media {
		if _, err = tx.Exec(ctx, insMedia, story.ID, i, url); err != nil {
			return err
		}
	}
	if _, err = tx.Exec(ctx, insVer, story.ID, story.Version, story.CreatedAt); err != nil {
		return err
	}
	return nil
}

// Update applies a patch with optimistic concurrency. The row lock on the
// story serializes racing transactions; the version check is done against
// the append-only log, not the story row alone, so a stale in-memory copy
// or a writer that bypassed the lock loses with ErrVersionConflict.
func (r *StoryRepo) Update(ctx context.Context, id uuid.UUID, patch model.StoryPatch) (story *model.Story, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
			story = nil
		}
	}()

	const sel = `
SELECT user_id, content, version, created_at, expires_at
FROM stories WHERE id=$1 FOR UPDATE`
	s := model.Story{ID: id}
	if err = tx.QueryRow(ctx, sel, id).Scan(
		&s.UserID, &s.Content, &s.Version, &s.CreatedAt, &s.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	const selLog = `SELECT COALESCE(MAX(version), -1) FROM version_records WHERE story_id=$1`
	var logVer int64
	if err = tx.QueryRow(ctx, selLog, id).Scan(&logVer); err != nil {
		return nil, err
	}
	if logVer != s.Version {
		err = errs.ErrVersionConflict
		return nil, err
	}
	if patch.BaseVersion != s.Version {
		err = errs.ErrVersionConflict
		return nil, err
	}

	if patch.Content != nil {
		s.Content = *patch.Content
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()

	const upd = `UPDATE stories SET content=$2, version=$3, updated_at=$4 WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, id, s.Content, s.Version, s.UpdatedAt); err != nil {
		return nil, err
	}

	if patch.Media != nil {
		// Media rows are replaced wholesale, not merged.
		if _, err = tx.Exec(ctx, delMedia, id); err != nil {
			return nil, err
		}
		for i, url := range *patch.Media {
			if _, err = tx.Exec(ctx, insMedia, id, i, url); err != nil {
				return nil, err
			}
		}
		s.Media = append([]string(nil), *patch.Media...)
	} else {
		if s.Media, err = scanMedia(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if _, err = tx.Exec(ctx, insVer, id, s.Version, s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes the story row (media rows cascade) and returns the
// deleted story. Version records are kept for audit.
func (r *StoryRepo) Delete(ctx context.Context, id uuid.UUID) (story *model.Story, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
			story = nil
		}
	}()

	const sel = `
SELECT user_id, content, version, created_at, expires_at, updated_at
FROM stories WHERE id=$1 FOR UPDATE`
	s := model.Story{ID: id}
	if err = tx.QueryRow(ctx, sel, id).Scan(
		&s.UserID, &s.Content, &s.Version, &s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if s.Media, err = scanMedia(ctx, tx, id); err != nil {
		return nil, err
	}

	const del = `DELETE FROM stories WHERE id=$1`
	if _, err = tx.Exec(ctx, del, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID returns a single story with its media, expired or not; visibility
// filtering belongs to the caller.
func (r *StoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Story, error) {
	const q = `
SELECT s.id, s.user_id, s.content, s.version, s.created_at, s.expires_at, s.updated_at,
       COALESCE(array_agg(m.url ORDER BY m.position) FILTER (WHERE m.url IS NOT NULL), '{}')
FROM stories s
LEFT JOIN story_media m ON m.story_id = s.id
WHERE s.id=$1
GROUP BY s.id`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var s model.Story
	if err := row.Scan(
		&s.ID, &s.UserID, &s.Content, &s.Version,
		&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt, &s.Media,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListActive returns unexpired stories with media, newest first.
func (r *StoryRepo) ListActive(ctx context.Context) ([]model.Story, error) {
	const q = `
SELECT s.id, s.user_id, s.content, s.version, s.created_at, s.expires_at, s.updated_at,
       COALESCE(array_agg(m.url ORDER BY m.position) FILTER (WHERE m.url IS NOT NULL), '{}')
FROM stories s
LEFT JOIN story_media m ON m.story_id = s.id
WHERE s.expires_at > now()
GROUP BY s.id
ORDER BY s.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStories(rows)
}

// ListActiveByAuthors returns unexpired stories by the given authors, newest first.
func (r *StoryRepo) ListActiveByAuthors(ctx context.Context, authorIDs []uuid.UUID) ([]model.Story, error) {
	if len(authorIDs) == 0 {
		return []model.Story{}, nil
	}
	ids := make([]string, len(authorIDs))
	for i, id := range authorIDs {
		ids[i] = id.String()
	}
	const q = `
SELECT s.id, s.user_id, s.content, s.version, s.created_at, s.expires_at, s.updated_at,
       COALESCE(array_agg(m.url ORDER BY m.position) FILTER (WHERE m.url IS NOT NULL), '{}')
FROM stories s
LEFT JOIN story_media m ON m.story_id = s.id
WHERE s.expires_at > now() AND s.user_id = ANY($1::uuid[])
GROUP BY s.id
ORDER BY s.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStories(rows)
}

// Versions returns the append-only version log for a story, oldest first.
func (r *StoryRepo) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionRecord, error) {
	const q = `
SELECT story_id, version, created_at
FROM version_records WHERE story_id=$1
ORDER BY version ASC`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VersionRecord
	for rows.Next() {
		var vr model.VersionRecord
		if err = rows.Scan(&vr.StoryID, &vr.Version, &vr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, vr)
	}
	return out, rows.Err()
}

func scanStories(rows pgx.Rows) ([]model.Story, error) {
	out := []model.Story{}
	for rows.Next() {
		var s model.Story
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Content, &s.Version,
			&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt, &s.Media,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanMedia(ctx context.Context, tx pgx.Tx, id uuid.UUID) ([]string, error) {
	rows, err := tx.Query(ctx, selMedia, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	media := []string{}
	for rows.Next() {
		var url string
		if err = rows.Scan(&url); err != nil {
			return nil, err
		}
		media = append(media, url)
	}
	return media, rows.Err()
}
