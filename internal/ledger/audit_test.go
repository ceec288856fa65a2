package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mutations and their audit rows commit atomically. These use a mock
// connection to force the audit insert itself to fail, which a live SQLite
// file will not do on demand.

func TestStore_Submit_AuditFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := &Store{db: db, log: slog.New(slog.DiscardHandler), maxScore: DefaultMaxScore}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM tanks`).
		WithArgs("IS-7").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("IS-7"))
	mock.ExpectQuery(`SELECT id, score FROM submissions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "score"}))
	mock.ExpectQuery(`INSERT INTO submissions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO score_changes`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = store.Submit(context.Background(), SubmitRequest{
		Player: "Alice", Tank: "IS-7", Score: 100,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AddTank_AuditFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := &Store{db: db, log: slog.New(slog.DiscardHandler), maxScore: DefaultMaxScore}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM tanks WHERE name_norm`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec(`INSERT INTO tanks`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO tank_changes`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = store.AddTank(context.Background(), "IS-7", 9, TypeHeavy, "tester")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")
	require.NoError(t, mock.ExpectationsWereMet())
}
