package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestJobRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	errDisk := errors.New("disk I/O error")

	t.Run("Create", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("INSERT INTO jobs").WillReturnError(errDisk)

		err := NewJobRepository(db).Create(ctx, models.NewJob("pl", "u", models.DefaultSortSpec, time.Now()))
		assert.ErrorIs(t, err, errDisk)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update not found rolls back", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id = ?").
			WithArgs("sort_x").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := NewJobRepository(db).Update(ctx, "sort_x", models.JobUpdate{}, time.Now())
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CountActiveForOwner", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery("SELECT COUNT").WithArgs("u1").WillReturnError(errDisk)

		_, err := NewJobRepository(db).CountActiveForOwner(ctx, "u1")
		assert.ErrorIs(t, err, errDisk)
	})

	t.Run("Recent scan error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		rows := sqlmock.NewRows([]string{"id"}).AddRow("sort_1")
		mock.ExpectQuery("SELECT (.+) FROM jobs WHERE owner_id").WillReturnRows(rows)

		_, err := NewJobRepository(db).Recent(ctx, "u1", 5)
		assert.Error(t, err)
	})

	t.Run("FailActive", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := NewJobRepository(db).FailActive(ctx, "e", "m", time.Now())
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})
}

func TestOperationRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Create rejects mismatched payload before touching the database", func(t *testing.T) {
		db, mock := setupMockDB(t)
		op := &models.Operation{
			CollectionID: "pl",
			OwnerID:      "u",
			Type:         models.OpDuplicatesRemove,
			Payload:      models.SortReorderPayload{},
		}

		assert.ErrorIs(t, NewOperationRepository(db).Create(ctx, op), shared.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt payload surfaces on read", func(t *testing.T) {
		db, mock := setupMockDB(t)
		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "collection_id", "owner_id", "op_type", "snapshot_before", "snapshot_after",
			"payload", "changes_made", "created_at", "expires_at", "undone",
		}).AddRow(1, "pl", "u", "sort_reorder", "a", "b", "{not json", true, now, now, false)
		mock.ExpectQuery("SELECT (.+) FROM operations").WillReturnRows(rows)

		_, err := NewOperationRepository(db).Get(ctx, 1)
		assert.Error(t, err)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("DELETE FROM operations").WillReturnError(errors.New("locked"))

		_, err := NewOperationRepository(db).DeleteExpired(ctx, time.Now())
		assert.Error(t, err)
	})
}

func TestScheduleRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Replace rolls back when insert fails", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM schedules").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO schedules").WillReturnError(errors.New("constraint failed"))
		mock.ExpectRollback()

		s := newSchedule("s1", "pl1", models.ActionSort, models.SortParams{}, nil)
		assert.Error(t, NewScheduleRepository(db).Replace(ctx, s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update missing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("UPDATE schedules").WillReturnResult(sqlmock.NewResult(0, 0))

		s := newSchedule("s1", "pl1", models.ActionSort, models.SortParams{}, nil)
		assert.ErrorIs(t, NewScheduleRepository(db).Update(ctx, s), shared.ErrNotFound)
	})
}
