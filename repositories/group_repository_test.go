package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRepository_ReplaceMember(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE group_memberships SET left_at = $4, replaced_by = $3`)).
		WithArgs(5, 3, 8, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO group_memberships (group_id, member_id)`)).
		WithArgs(5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresGroupRepository(db).ReplaceMember(context.Background(), nil, 5, 3, 8, at))
}

func TestGroupRepository_ReplaceMemberWithoutSeat(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE group_memberships`)).
		WithArgs(5, 3, 8, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPostgresGroupRepository(db).ReplaceMember(context.Background(), nil, 5, 3, 8, at)
	assert.ErrorIs(t, err, ErrGroupMembershipNotFound)
}
