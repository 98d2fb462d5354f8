package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, dialect), mock
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"postgres fk", &pq.Error{Code: "23503"}, false},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"sqlite foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, false},
		{"plain", errors.New("unique"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", placeholders(1, 1))
	assert.Equal(t, "$3, $4, $5", placeholders(3, 3))
	assert.Equal(t, "", placeholders(1, 0))
}

func TestLockClause(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", DialectPostgres.lockClause())
	assert.Equal(t, "", DialectSQLite.lockClause())
}

func TestGetRole_LocksOnPostgres(t *testing.T) {
	store, mock := newMockStore(t, DialectPostgres)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+roleColumns+" FROM roles WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "role_key", "name", "scope", "created_at", "updated_at"}).
			AddRow(7, nil, "auditor", "Auditor", "CENTRAL", now, now))

	role, err := store.getRole(context.Background(), store.DB(), 7, true)
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, "auditor", role.Key)
	assert.Nil(t, role.TenantID)
	assert.Equal(t, ScopeCentral, role.Scope)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActiveHolders_Exclusions(t *testing.T) {
	store, mock := newMockStore(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM memberships WHERE role_id = $1 AND status = $2")).
		WithArgs(int64(3), MembershipActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM memberships WHERE role_id = $1 AND status = $2 AND user_id NOT IN ($3, $4)")).
		WithArgs(int64(3), MembershipActive, int64(10), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := store.countActiveHolders(ctx, store.DB(), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.countActiveHolders(ctx, store.DB(), 3, []int64{10, 11})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRoles_NullifiesBeforeDeleting(t *testing.T) {
	store, mock := newMockStore(t, DialectPostgres)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE memberships SET role_id = NULL, updated_at = $1 WHERE role_id IN ($2, $3)")).
		WithArgs(sqlmock.AnyArg(), int64(4), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions WHERE role_id IN ($1, $2)")).
		WithArgs(int64(4), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM roles WHERE id IN ($1, $2)")).
		WithArgs(int64(4), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.deleteRoles(context.Background(), store.DB(), []int64{4, 5}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		store, mock := newMockStore(t, DialectPostgres)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM memberships").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithTx(ctx, time.Second, func(ctx context.Context, tx *sql.Tx) error {
			return store.deleteMembershipRow(ctx, tx, 1)
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		store, mock := newMockStore(t, DialectPostgres)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithTx(ctx, time.Second, func(context.Context, *sql.Tx) error {
			return NewError(CodeRoleNotFound)
		})
		requireCode(t, err, CodeRoleNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		store, mock := newMockStore(t, DialectPostgres)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = store.WithTx(ctx, time.Second, func(context.Context, *sql.Tx) error {
				panic("boom")
			})
		})
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure", func(t *testing.T) {
		store, mock := newMockStore(t, DialectPostgres)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "23505"})

		err := store.WithTx(ctx, time.Second, func(context.Context, *sql.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.True(t, isUniqueViolation(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		store, mock := newMockStore(t, DialectPostgres)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		err := store.WithTx(ctx, time.Second, func(context.Context, *sql.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}
