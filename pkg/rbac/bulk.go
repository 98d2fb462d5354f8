package rbac

import (
	"context"
	"database/sql"
	"time"
)

// bulkPlan describes one kind of bulk delete. load fetches the current rows for
// every id inside the transaction; check returns a block reason or "" when the
// item may be deleted; execute removes the accepted ids.
type bulkPlan[T any] struct {
	load    func(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]T, error)
	check   func(ctx context.Context, tx *sql.Tx, id int64, item T, accepted []int64) (Code, error)
	execute func(ctx context.Context, tx *sql.Tx, ids []int64) error
}

// runBulk partitions ids into deletable and blocked sets and deletes the
// deletable ones in a single transaction. Missing ids are blocked with
// NOT_FOUND. If the transaction fails nothing is deleted.
func runBulk[T any](ctx context.Context, store *Store, timeout time.Duration, ids []int64, plan bulkPlan[T]) (*BulkResult, error) {
	ids = dedupeIDs(ids)
	result := &BulkResult{DeletedIDs: []int64{}}
	if len(ids) == 0 {
		return result, nil
	}

	var accepted []int64
	var blocked []BlockedItem

	err := store.WithTx(ctx, timeout, func(ctx context.Context, tx *sql.Tx) error {
		accepted = accepted[:0]
		blocked = blocked[:0]

		items, err := plan.load(ctx, tx, ids)
		if err != nil {
			return err
		}

		for _, id := range ids {
			item, ok := items[id]
			if !ok {
				blocked = append(blocked, BlockedItem{ID: id, Reason: CodeNotFound})
				continue
			}
			reason, err := plan.check(ctx, tx, id, item, accepted)
			if err != nil {
				return err
			}
			if reason != "" {
				blocked = append(blocked, BlockedItem{ID: id, Reason: reason})
				continue
			}
			accepted = append(accepted, id)
		}

		if len(accepted) == 0 {
			return nil
		}
		return plan.execute(ctx, tx, accepted)
	})
	if err != nil {
		return nil, err
	}

	result.DeletedIDs = append(result.DeletedIDs, accepted...)
	result.DeletedCount = len(accepted)
	result.Blocked = blocked
	result.BlockedCount = len(blocked)
	return result, nil
}
