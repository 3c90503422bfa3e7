package lock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PG is a PostgreSQL-backed lock manager. A lock is a single row keyed by
// resource name; acquisition is one conditional write, so concurrent
// callers on the same resource race inside the database, not in Go.
type PG struct {
	pool   pgxQuerier
	logger *zap.Logger
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed lock manager.
func NewPG(pool *pgxpool.Pool, logger *zap.Logger) *PG {
	return &PG{pool: pool, logger: logger}
}

// NewPGWithQuerier constructs a PostgreSQL-backed lock manager over any
// querier (used by tests to substitute a mock pool).
func NewPGWithQuerier(q pgxQuerier, logger *zap.Logger) *PG {
	return &PG{pool: q, logger: logger}
}

// Acquire inserts the lock row, or takes over an expired one. The
// ON CONFLICT update is guarded by held_until <= now(): while another
// holder's deadline is in the future the statement touches no row and
// RETURNING yields nothing, which maps to a nil handle.
func (m *PG) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Handle, error) {
	const q = `
INSERT INTO locks (resource, held_until)
VALUES ($1, now() + $2::interval)
ON CONFLICT (resource) DO UPDATE SET held_until = EXCLUDED.held_until
WHERE locks.held_until <= now()
RETURNING resource`
	var got string
	err := m.pool.QueryRow(ctx, q, resource, ttl).Scan(&got)
	switch {
	case err == nil:
		m.logger.Debug("lock acquired",
			zap.String("resource", resource),
			zap.Duration("ttl", ttl),
		)
		return NewHandle(resource, func(ctx context.Context) { m.release(ctx, resource) }), nil
	case errors.Is(err, pgx.ErrNoRows):
		m.logger.Debug("lock contended", zap.String("resource", resource))
		return nil, nil
	default:
		return nil, err
	}
}

// IsActive reports whether an unexpired lock row exists for resource.
func (m *PG) IsActive(ctx context.Context, resource string) (bool, error) {
	const q = `SELECT held_until FROM locks WHERE resource=$1`
	var heldUntil time.Time
	err := m.pool.QueryRow(ctx, q, resource).Scan(&heldUntil)
	switch {
	case err == nil:
		return heldUntil.After(time.Now()), nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// release deletes the lock row. Absent rows and storage faults are logged
// and swallowed; a lock the store lost anyway expires via its TTL.
func (m *PG) release(ctx context.Context, resource string) {
	const q = `DELETE FROM locks WHERE resource=$1`
	tag, err := m.pool.Exec(ctx, q, resource)
	if err != nil {
		m.logger.Error("lock release failed",
			zap.String("resource", resource),
			zap.Error(err),
		)
		return
	}
	if tag.RowsAffected() == 0 {
		m.logger.Warn("no lock row to release", zap.String("resource", resource))
		return
	}
	m.logger.Debug("lock released", zap.String("resource", resource))
}

// SweepExpired deletes lock rows whose deadline has passed. Correctness
// never depends on it (Acquire takes over expired rows itself); it only
// keeps the table from accumulating dead rows.
func (m *PG) SweepExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM locks WHERE held_until <= now()`
	tag, err := m.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	if n := tag.RowsAffected(); n > 0 {
		m.logger.Debug("swept expired locks", zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}
