package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	return conn, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	}
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewPostgresFractalRepository(db)
	err := NewTxRunner(db, nil).RunInTx(context.Background(), func(tx SQLExecutor) error {
		return repo.Lock(context.Background(), tx, 7)
	})
	assert.NoError(t, err)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewTxRunner(db, nil).RunInTx(context.Background(), func(tx SQLExecutor) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunInTx_RollsBackOnPanic(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = NewTxRunner(db, nil).RunInTx(context.Background(), func(tx SQLExecutor) error {
			panic("bad")
		})
	})
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "fractals_name_key"}
	assert.True(t, isUniqueViolation(err, "fractals_name_key"))
	assert.True(t, isUniqueViolation(err, ""))
	assert.False(t, isUniqueViolation(err, "other"))
	assert.False(t, isUniqueViolation(errors.New("x"), ""))

	constraint, ok := foreignKeyConstraint(&pq.Error{Code: "23503", Constraint: "votes_fk"})
	assert.True(t, ok)
	assert.Equal(t, "votes_fk", constraint)
}
