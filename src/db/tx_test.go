package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx // unimplemented methods panic

	log       *[]string
	commitErr error
	committed bool
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	*tx.log = append(*tx.log, "commit")
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.committed {
		return pgx.ErrTxClosed
	}
	*tx.log = append(*tx.log, "rollback")
	return nil
}

type fakeConn struct {
	log       []string
	commitErr error
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	c.log = append(c.log, "begin")
	return &fakeTx{log: &c.log, commitErr: c.commitErr}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not used")
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not used")
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("not used")
}

func TestCommitThen(t *testing.T) {
	ctx := context.Background()

	t.Run("side effects run after commit", func(t *testing.T) {
		conn := &fakeConn{}
		result, err := CommitThen(ctx, conn,
			func(tx pgx.Tx) (int, error) {
				conn.log = append(conn.log, "write")
				return 42, nil
			},
			SideEffect[int]{Name: "audit", Run: func(ctx context.Context, committed int) error {
				conn.log = append(conn.log, "audit")
				assert.Equal(t, 42, committed)
				return nil
			}},
		)
		require.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, []string{"begin", "write", "commit", "audit"}, conn.log)
	})

	t.Run("side effect failures are swallowed", func(t *testing.T) {
		conn := &fakeConn{}
		result, err := CommitThen(ctx, conn,
			func(tx pgx.Tx) (string, error) { return "ban", nil },
			SideEffect[string]{Name: "failing audit", Run: func(ctx context.Context, committed string) error {
				return errors.New("audit database unavailable")
			}},
			SideEffect[string]{Name: "panicking notify", Run: func(ctx context.Context, committed string) error {
				panic("nats exploded")
			}},
			SideEffect[string]{Name: "still runs", Run: func(ctx context.Context, committed string) error {
				conn.log = append(conn.log, "still runs")
				return nil
			}},
		)
		require.NoError(t, err)
		assert.Equal(t, "ban", result)
		assert.Contains(t, conn.log, "still runs")
	})

	t.Run("write failure rolls back and skips side effects", func(t *testing.T) {
		conn := &fakeConn{}
		writeErr := errors.New("insert failed")
		_, err := CommitThen(ctx, conn,
			func(tx pgx.Tx) (int, error) { return 0, writeErr },
			SideEffect[int]{Name: "audit", Run: func(ctx context.Context, committed int) error {
				t.Fatal("side effect must not run when the write fails")
				return nil
			}},
		)
		assert.ErrorIs(t, err, writeErr)
		assert.Equal(t, []string{"begin", "rollback"}, conn.log)
	})

	t.Run("commit failure skips side effects", func(t *testing.T) {
		conn := &fakeConn{commitErr: errors.New("serialization failure")}
		_, err := CommitThen(ctx, conn,
			func(tx pgx.Tx) (int, error) { return 1, nil },
			SideEffect[int]{Name: "audit", Run: func(ctx context.Context, committed int) error {
				t.Fatal("side effect must not run when the commit fails")
				return nil
			}},
		)
		assert.Error(t, err)
		assert.Equal(t, []string{"begin", "commit", "rollback"}, conn.log)
	})
}
