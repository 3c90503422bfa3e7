package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const acquireSQL = `INSERT INTO locks \(resource, held_until\)
VALUES \(\$1, now\(\) \+ \$2::interval\)
ON CONFLICT \(resource\) DO UPDATE SET held_until = EXCLUDED\.held_until
WHERE locks\.held_until <= now\(\)
RETURNING resource`

func newPG(t *testing.T) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewPGWithQuerier(mock, zap.NewNop()), mock
}

func TestPG_Acquire_OK(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(acquireSQL).
		WithArgs("story-update-abc", time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"resource"}).AddRow("story-update-abc"))

	h, err := m.Acquire(ctx, "story-update-abc", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, "story-update-abc", h.Resource())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_Acquire_Contended(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(acquireSQL).
		WithArgs("story-update-abc", time.Minute).
		WillReturnError(pgx.ErrNoRows)

	h, err := m.Acquire(ctx, "story-update-abc", time.Minute)
	require.NoError(t, err)
	require.Nil(t, h)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_Acquire_StoreFault(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	boom := errors.New("connection refused")
	mock.ExpectQuery(acquireSQL).
		WithArgs("story-create-u1", time.Minute).
		WillReturnError(boom)

	h, err := m.Acquire(ctx, "story-create-u1", time.Minute)
	require.ErrorIs(t, err, boom)
	require.Nil(t, h)
}

func TestPG_Release_DeletesRow(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(acquireSQL).
		WithArgs("story-update-abc", time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"resource"}).AddRow("story-update-abc"))
	mock.ExpectExec(`DELETE FROM locks WHERE resource=\$1`).
		WithArgs("story-update-abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	h, err := m.Acquire(ctx, "story-update-abc", time.Minute)
	require.NoError(t, err)
	h.Release(ctx)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_Release_Idempotent(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(acquireSQL).
		WithArgs("story-update-abc", time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"resource"}).AddRow("story-update-abc"))
	mock.ExpectExec(`DELETE FROM locks WHERE resource=\$1`).
		WithArgs("story-update-abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	h, err := m.Acquire(ctx, "story-update-abc", time.Minute)
	require.NoError(t, err)
	h.Release(ctx)
	h.Release(ctx) // second call must not touch the store
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_Release_AbsentRowIsNoOp(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(acquireSQL).
		WithArgs("story-update-abc", time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"resource"}).AddRow("story-update-abc"))
	mock.ExpectExec(`DELETE FROM locks WHERE resource=\$1`).
		WithArgs("story-update-abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	h, err := m.Acquire(ctx, "story-update-abc", time.Minute)
	require.NoError(t, err)
	h.Release(ctx)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_IsActive(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT held_until FROM locks WHERE resource=\$1`).
		WithArgs("story-update-abc").
		WillReturnRows(pgxmock.NewRows([]string{"held_until"}).AddRow(time.Now().Add(time.Minute)))

	active, err := m.IsActive(ctx, "story-update-abc")
	require.NoError(t, err)
	require.True(t, active)
}

func TestPG_IsActive_ExpiredRow(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT held_until FROM locks WHERE resource=\$1`).
		WithArgs("story-update-abc").
		WillReturnRows(pgxmock.NewRows([]string{"held_until"}).AddRow(time.Now().Add(-time.Second)))

	active, err := m.IsActive(ctx, "story-update-abc")
	require.NoError(t, err)
	require.False(t, active)
}

func TestPG_IsActive_NoRow(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT held_until FROM locks WHERE resource=\$1`).
		WithArgs("story-update-abc").
		WillReturnError(pgx.ErrNoRows)

	active, err := m.IsActive(ctx, "story-update-abc")
	require.NoError(t, err)
	require.False(t, active)
}

func TestPG_SweepExpired(t *testing.T) {
	m, mock := newPG(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM locks WHERE held_until <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
