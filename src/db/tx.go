package db

import (
	"context"

	"git.handmade.network/hmn/boardmod/src/logging"
	"git.handmade.network/hmn/boardmod/src/oops"
	"github.com/jackc/pgx/v5"
)

// Runs fn inside a transaction on a single checked-out connection. The
// transaction is committed if fn returns nil and rolled back otherwise; the
// connection goes back to the pool either way.
func WithTx(ctx context.Context, conn ConnOrTx, fn func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

// A best-effort step that runs after a transaction has committed.
type SideEffect[T any] struct {
	Name string
	Run  func(ctx context.Context, committed T) error
}

/*
Commit, then best-effort side effects.

write runs in a transaction (see WithTx). Only once the commit has returned
successfully are the side effects run, in order, with the committed value.
Side effect errors (and panics) are logged and swallowed: by the time they
run, the primary write is durable and the caller gets its result regardless.

This is how audit rows that reference a freshly inserted row by foreign key
get written: they can't be written before the referenced row is committed,
and a failure to write them must not undo it.
*/
func CommitThen[T any](
	ctx context.Context,
	conn ConnOrTx,
	write func(tx pgx.Tx) (T, error),
	sideEffects ...SideEffect[T],
) (T, error) {
	var committed T
	err := WithTx(ctx, conn, func(tx pgx.Tx) error {
		var err error
		committed, err = write(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	for _, effect := range sideEffects {
		runSideEffect(ctx, effect, committed)
	}

	return committed, nil
}

func runSideEffect[T any](ctx context.Context, effect SideEffect[T], committed T) {
	logger := logging.ExtractLogger(ctx)
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanicValue(logger, r, "post-commit side effect panicked: "+effect.Name)
		}
	}()

	if err := effect.Run(ctx, committed); err != nil {
		logger.Error().Err(err).Str("side_effect", effect.Name).Msg("post-commit side effect failed")
	}
}
