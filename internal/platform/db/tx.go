package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes fn in a ReadCommitted transaction. The sync paths depend
// on this level: they open with an advisory lock that may block, and under
// ReadCommitted every statement takes a fresh snapshot, so the reads after
// the lock see whatever the previous lock holder committed. RepeatableRead
// would pin the snapshot at the lock statement itself, before the lock is
// granted, and the diff would run against stale edges.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return run(ctx, pool, pgx.ReadCommitted, fn)
}

// WithSnapshotTx executes fn in a RepeatableRead transaction. Multi-query
// reads such as the subject snapshot load run through this wrapper so one
// logical read never observes two states.
func WithSnapshotTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return run(ctx, pool, pgx.RepeatableRead, fn)
}

func run(ctx context.Context, pool *pgxpool.Pool, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
