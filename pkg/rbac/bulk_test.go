package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rolePlan(f *fixture, check func(id int64, accepted []int64) Code, execErr error) bulkPlan[*Role] {
	return bulkPlan[*Role]{
		load: func(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*Role, error) {
			return f.engine.store.rolesByIDs(ctx, tx, ids)
		},
		check: func(_ context.Context, _ *sql.Tx, id int64, _ *Role, accepted []int64) (Code, error) {
			return check(id, accepted), nil
		},
		execute: func(ctx context.Context, tx *sql.Tx, ids []int64) error {
			if err := f.engine.store.deleteRoles(ctx, tx, ids); err != nil {
				return err
			}
			return execErr
		},
	}
}

func TestRunBulk_EmptyInput(t *testing.T) {
	f := newFixture(t)
	called := false
	plan := rolePlan(f, func(int64, []int64) Code { called = true; return "" }, nil)

	res, err := runBulk(f.ctx, f.engine.store, 0, nil, plan)
	require.NoError(t, err)
	assert.Equal(t, &BulkResult{DeletedIDs: []int64{}}, res)
	assert.False(t, called)
}

func TestRunBulk_DedupesAndSeesAcceptedItems(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")
	a := f.role(acme.actor(), "a")
	b := f.role(acme.actor(), "b")

	var seen [][]int64
	plan := rolePlan(f, func(id int64, accepted []int64) Code {
		seen = append(seen, append([]int64{}, accepted...))
		return ""
	}, nil)

	res, err := runBulk(f.ctx, f.engine.store, f.engine.config.BulkTimeout, []int64{a, b, a, b}, plan)
	require.NoError(t, err)

	assert.Equal(t, []int64{a, b}, res.DeletedIDs)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Zero(t, res.BlockedCount)
	assert.Equal(t, [][]int64{{}, {a}}, seen)
	assert.Nil(t, f.roleByID(a))
	assert.Nil(t, f.roleByID(b))
}

func TestRunBulk_AllBlockedSkipsExecute(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")
	a := f.role(acme.actor(), "a")

	plan := rolePlan(f, func(int64, []int64) Code { return CodeForbidden }, errors.New("must not run"))
	res, err := runBulk(f.ctx, f.engine.store, 0, []int64{a, 999}, plan)
	require.NoError(t, err)

	assert.Equal(t, []int64{}, res.DeletedIDs)
	assert.Equal(t, []BlockedItem{
		{ID: a, Reason: CodeForbidden},
		{ID: 999, Reason: CodeNotFound},
	}, res.Blocked)
	assert.NotNil(t, f.roleByID(a))
}

func TestRunBulk_ExecuteFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")
	a := f.role(acme.actor(), "a")
	b := f.role(acme.actor(), "b")

	boom := errors.New("boom")
	plan := rolePlan(f, func(int64, []int64) Code { return "" }, boom)

	res, err := runBulk(f.ctx, f.engine.store, 0, []int64{a, b}, plan)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.NotNil(t, f.roleByID(a))
	assert.NotNil(t, f.roleByID(b))
}
