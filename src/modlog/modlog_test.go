package modlog

import (
	"context"
	"testing"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/dbtest"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCommitsWithTransaction(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	adminID := dbtest.CreateAdmin(t, pool, "ledgermod", "moderator")

	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		_, err := Write(ctx, tx, Entry{
			AdminUserID: &adminID,
			ActionType:  models.ModActionViewIP,
			IPAddress:   utils.P("1.2.3.4"),
		})
		return err
	})
	require.NoError(t, err)

	rolledBack := assert.AnError
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := Write(ctx, tx, Entry{ActionType: models.ModActionViewIP}); err != nil {
			return err
		}
		return rolledBack
	})
	assert.ErrorIs(t, err, rolledBack)

	actions, err := Fetch(ctx, pool, Query{ActionType: models.ModActionViewIP})
	require.NoError(t, err)
	require.Len(t, actions, 1, "the rolled back entry must not exist")
	assert.Equal(t, adminID, *actions[0].AdminUserID)
	assert.Equal(t, "1.2.3.4", *actions[0].IPAddress)
}
