// Package modlog writes the moderation ledger. Entries go in the same
// transaction as the mutation they record, so they commit or roll back with it.
package modlog

import (
	"context"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
)

type Entry struct {
	AdminUserID *int
	ActionType  models.ModerationActionType
	BoardID     *string
	Reason      *string
	IPAddress   *string
	BanID       *int
	RangebanID  *int
	ThreadID    *int
	PostID      *int
}

func Write(ctx context.Context, tx db.ConnOrTx, e Entry) (*models.ModerationAction, error) {
	action, err := db.QueryOne[models.ModerationAction](ctx, tx,
		`
		---- Write moderation action
		INSERT INTO moderation_actions (
			admin_user_id, action_type, board_id, reason, ip_address,
			ban_id, rangeban_id, thread_id, post_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING $columns
		`,
		e.AdminUserID, e.ActionType, e.BoardID, e.Reason, e.IPAddress,
		e.BanID, e.RangebanID, e.ThreadID, e.PostID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to write %s moderation action", e.ActionType)
	}
	return action, nil
}

type Query struct {
	BanID      *int
	RangebanID *int
	ActionType models.ModerationActionType // if empty, all types
	Limit      int                         // if zero, no limit
}

// Fetches ledger entries, newest first.
func Fetch(ctx context.Context, conn db.ConnOrTx, q Query) ([]*models.ModerationAction, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch moderation actions
		SELECT $columns
		FROM moderation_actions
		WHERE TRUE
		`,
	)
	if q.BanID != nil {
		qb.Add(`AND ban_id = $?`, *q.BanID)
	}
	if q.RangebanID != nil {
		qb.Add(`AND rangeban_id = $?`, *q.RangebanID)
	}
	if q.ActionType != "" {
		qb.Add(`AND action_type = $?`, q.ActionType)
	}
	qb.Add(`ORDER BY created_at DESC, id DESC`)
	if q.Limit > 0 {
		qb.Add(`LIMIT $?`, q.Limit)
	}

	actions, err := db.Query[models.ModerationAction](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch moderation actions")
	}
	return actions, nil
}
