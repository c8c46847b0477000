package notes

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/dbx"
	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, dialect dbx.Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, dialect,
		WithIDGenerator(func() string { return "id-1" }),
		WithClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
	s.migrate = func(context.Context, dbx.Dialect, *sql.DB) error { return nil }
	return s, mock
}

func TestCreate_PostgresPlaceholdersAndStorageError(t *testing.T) {
	s, mock := newMockStore(t, dbx.Postgres)

	mock.ExpectExec(`INSERT INTO notes \(.*\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\)`).
		WithArgs("id-1", "t", "Inbox", "", "", "", "", "[]", "Uploaded",
			"2025-01-02T03:04:05.000000000Z", "2025-01-02T03:04:05.000000000Z").
		WillReturnError(errors.New("db is down"))

	_, err := s.Create(context.Background(), &models.NoteRecord{Title: "t"})
	require.ErrorIs(t, err, common.ErrStorage)
	assert.Contains(t, err.Error(), "db is down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_WithCategoryUsesCategoryColumn(t *testing.T) {
	s, mock := newMockStore(t, dbx.SQLite)

	mock.ExpectExec(`UPDATE notes SET recognition_status = \?, recognized_text = \?, error_message = \?,\s+category_label = \?`).
		WithArgs("Completed", "text", "", "Work", sqlmock.AnyArg(), sqlmock.AnyArg(), "id-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateStatus(context.Background(), "id-9", models.StatusCompleted, "text", "Work", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RowsAffectedErrors(t *testing.T) {
	s, mock := newMockStore(t, dbx.SQLite)

	mock.ExpectExec(`UPDATE notes SET`).WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))
	err := s.UpdateStatus(context.Background(), "a", models.StatusQueued, "", "", "")
	require.ErrorIs(t, err, common.ErrStorage)

	mock.ExpectExec(`UPDATE notes SET`).WillReturnResult(sqlmock.NewResult(0, 2))
	err = s.UpdateStatus(context.Background(), "a", models.StatusQueued, "", "", "")
	require.ErrorIs(t, err, common.ErrStorage)
	assert.Contains(t, err.Error(), "unexpected rows affected: 2")
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	s, _ := newMockStore(t, dbx.SQLite)

	err := s.UpdateStatus(context.Background(), "a", "Sleeping", "", "", "")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestListByStatus_Errors(t *testing.T) {
	s, mock := newMockStore(t, dbx.SQLite)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE recognition_status = \?`).
		WithArgs("Queued").
		WillReturnError(errors.New("db err"))
	_, err := s.ListByStatus(context.Background(), models.StatusQueued)
	require.ErrorIs(t, err, common.ErrStorage)

	cols := []string{"id", "title", "category_label", "original_text", "recognized_text", "error_message",
		"audio_path", "photo_paths", "recognition_status", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("a", "t", "Inbox", "", "", "", "", "[]", "Bogus", "2025-01-02T03:04:05.000000000Z", "2025-01-02T03:04:05.000000000Z")
	mock.ExpectQuery(`SELECT .* FROM notes WHERE recognition_status = \?`).WillReturnRows(rows)
	_, err = s.ListByStatus(context.Background(), models.StatusQueued)
	require.ErrorIs(t, err, common.ErrStorage)

	rows = sqlmock.NewRows(cols).
		AddRow("a", "t", "Inbox", "", "", "", "", "[]", "Queued", "2025-01-02T03:04:05.000000000Z", "2025-01-02T03:04:05.000000000Z").
		AddRow("b", "t", "Inbox", "", "", "", "", "[]", "Queued", "2025-01-02T03:04:05.000000000Z", "2025-01-02T03:04:05.000000000Z").
		RowError(1, errors.New("row-err"))
	mock.ExpectQuery(`SELECT .* FROM notes WHERE recognition_status = \?`).WillReturnRows(rows)
	_, err = s.ListByStatus(context.Background(), models.StatusQueued)
	require.ErrorIs(t, err, common.ErrStorage)
	assert.Contains(t, err.Error(), "row-err")
}

func TestGet_StorageErrorIsNotNotFound(t *testing.T) {
	s, mock := newMockStore(t, dbx.SQLite)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE id = \?`).WithArgs("a").WillReturnError(errors.New("locked"))

	_, err := s.Get(context.Background(), "a")
	require.ErrorIs(t, err, common.ErrStorage)
	require.NotErrorIs(t, err, common.ErrNotFound)
}

func TestRequeue_SingleConditionalStatement(t *testing.T) {
	s, mock := newMockStore(t, dbx.Postgres)

	mock.ExpectExec(`UPDATE notes SET recognition_status = \$1,\s+recognized_text = '', error_message = '',.*WHERE id = \$4 AND recognition_status = \$5`).
		WithArgs("Queued", "2025-01-02T03:04:05.000000000Z", "2025-01-02T03:04:05.000000000Z", "n1", "Failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.Requeue(context.Background(), "n1", models.StatusFailed)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
