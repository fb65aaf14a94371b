package contacts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "first_name", "last_name", "phone_number", "synced", "soft_deleted", "pending_change", "edited_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func strp(s string) *string { return &s }

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO contacts .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("X", "Jane", "Doe", "555", false, false, "created", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.Contact{
		ID: "X", FirstName: "Jane", LastName: "Doe", PhoneNumber: "555",
		PendingChange: models.PendingCreated,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DuplicateIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO contacts .* ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Insert(context.Background(), &models.Contact{ID: "X", FirstName: "A", LastName: "B", PhoneNumber: "1"})
	assert.True(t, errors.Is(err, common.ErrConflict), "got %v", err)
}

func TestInsert_UniqueViolationIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO contacts`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Insert(context.Background(), &models.Contact{ID: "X"})
	assert.True(t, errors.Is(err, common.ErrConflict), "got %v", err)
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO contacts`).WillReturnError(errors.New("db is down"))

	err := repo.Insert(context.Background(), &models.Contact{ID: "X"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrConflict))
	assert.Contains(t, err.Error(), "db error")
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	edited := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM contacts WHERE id = \$1`).
		WithArgs("X").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("X", "Jane", "Doe", "555", false, false, "updated", edited))

	c, err := repo.GetByID(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "Jane", c.FirstName)
	assert.Equal(t, models.PendingUpdated, c.PendingChange)
	require.NotNil(t, c.EditedAt)
	assert.True(t, c.EditedAt.Equal(edited))

	mock.ExpectQuery(`SELECT .* FROM contacts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUpdate_Applied(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	edited := time.Date(2024, 1, 1, 0, 0, 6, 0, time.UTC)
	mock.ExpectQuery(`UPDATE contacts SET synced = \$1, pending_change = \$2, edited_at = \$3, first_name = \$4 WHERE id = \$5 AND soft_deleted = \$6 AND \(edited_at IS NULL OR edited_at < \$7\) RETURNING`).
		WithArgs(false, "updated", edited, "Janet", "X", false, edited).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("X", "Janet", "Doe", "555", false, false, "updated", edited))

	c, applied, err := repo.ApplyUpdate(context.Background(), "X", models.Patch{FirstName: strp("Janet")}, edited)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "Janet", c.FirstName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUpdate_RejectedReturnsCurrent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	stored := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	older := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)

	mock.ExpectQuery(`UPDATE contacts SET .* RETURNING`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM contacts WHERE id = \$1`).
		WithArgs("X").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("X", "Jane", "Doe", "555", true, false, nil, stored))

	c, applied, err := repo.ApplyUpdate(context.Background(), "X", models.Patch{FirstName: strp("Old")}, older)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "Jane", c.FirstName)
	assert.Equal(t, models.PendingNone, c.PendingChange)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUpdate_MissingIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE contacts SET .* RETURNING`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM contacts WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	_, _, err := repo.ApplyUpdate(context.Background(), "X", models.Patch{}, time.Now())
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSoftDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE contacts\s+SET soft_deleted = TRUE, synced = FALSE, pending_change = 'deleted'\s+WHERE id = \$1\s+RETURNING`).
		WithArgs("Y").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("Y", "A", "B", "1", false, true, "deleted", nil))

	c, err := repo.SoftDelete(context.Background(), "Y")
	require.NoError(t, err)
	assert.True(t, c.SoftDeleted)
	assert.Nil(t, c.EditedAt)

	mock.ExpectQuery(`UPDATE contacts`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = repo.SoftDelete(context.Background(), "nope")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestAcknowledge(t *testing.T) {
	t.Run("cleared", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`UPDATE contacts\s+SET synced = TRUE, pending_change = NULL`).
			WithArgs("X", "created").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Acknowledge(context.Background(), "X", models.PendingCreated))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale ack is a no-op", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`UPDATE contacts`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM contacts WHERE id = \$1`).
			WithArgs("X").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		require.NoError(t, repo.Acknowledge(context.Background(), "X", models.PendingCreated))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`UPDATE contacts`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM contacts`).WillReturnError(sql.ErrNoRows)

		err := repo.Acknowledge(context.Background(), "X", models.PendingUpdated)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})
}

func TestRemove_IsIdempotent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM contacts WHERE id = \$1 AND soft_deleted = TRUE`).
		WithArgs("Z").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Remove(context.Background(), "Z"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPending(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM contacts WHERE synced = FALSE OR soft_deleted = TRUE`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("A", "A", "A", "1", false, false, "created", nil).
			AddRow("B", "B", "B", "2", false, true, "deleted", nil))

	got, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.PendingCreated, got[0].PendingChange)
	assert.True(t, got[1].SoftDeleted)
}

func TestListVisible_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM contacts WHERE soft_deleted = FALSE`).WillReturnError(errors.New("boom"))

	_, err := repo.ListVisible(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select contacts")
}
