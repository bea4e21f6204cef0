package rangebans

import (
	"context"
	"errors"
	"time"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/notify"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/jackc/pgx/v5"
)

type RangebanPatch struct {
	Reason    *string
	ExpiresAt utils.Optional[*time.Time]
	IsActive  *bool

	// The moderator making the change. Recorded in the ledger only.
	AdminUserID *int
}

func (p RangebanPatch) IsEmpty() bool {
	return p.Reason == nil && !p.ExpiresAt.Set && p.IsActive == nil
}

func (p RangebanPatch) setClauses() []db.Chunk {
	var chunks []db.Chunk
	if p.Reason != nil {
		chunks = append(chunks, db.C(`reason = $?`, *p.Reason))
	}
	if p.ExpiresAt.Set {
		chunks = append(chunks, db.C(`expires_at = $?`, p.ExpiresAt.Value))
	}
	if p.IsActive != nil {
		chunks = append(chunks, db.C(`is_active = $?`, *p.IsActive))
	}
	return chunks
}

/*
Applies a partial update and returns the updated rangeban, or nil if there is
no rangeban with that id. Deactivating is ledgered as an unrangeban, anything
else as a rangeban update. Reactivating fails with ErrActiveRangebanExists if
another active rangeban has taken its place meanwhile.
*/
func (s *Store) UpdateRangeban(ctx context.Context, id int, patch RangebanPatch) (*models.Rangeban, error) {
	if patch.Reason != nil {
		if err := oops.RequireFields("reason", *patch.Reason); err != nil {
			return nil, err
		}
	}

	var lifted bool
	rangeban, err := db.CommitThen(ctx, s.conn,
		func(tx pgx.Tx) (*models.Rangeban, error) {
			current, err := db.QueryOne[models.Rangeban](ctx, tx,
				`
				---- Lock rangeban for update
				SELECT $columns
				FROM rangebans
				WHERE id = $1
				FOR UPDATE
				`,
				id,
			)
			if errors.Is(err, db.NotFound) {
				return nil, nil
			} else if err != nil {
				return nil, oops.New(err, "failed to fetch rangeban %d", id)
			}

			if patch.IsEmpty() {
				return current, nil
			}

			if patch.IsActive != nil && *patch.IsActive && !current.IsActive {
				_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(current.BanType, current.BanValue, current.BoardID))
				if err != nil {
					return nil, oops.New(err, "failed to lock rangeban value")
				}
			}

			var qb db.QueryBuilder
			qb.Add(`---- Update rangeban`)
			qb.Add(`UPDATE rangebans SET`)
			qb.AddJoined(", ", patch.setClauses())
			qb.Add(`WHERE id = $? RETURNING $columns`, id)

			updated, err := db.QueryOne[models.Rangeban](ctx, tx, qb.String(), qb.Args()...)
			if db.IsUniqueViolation(err) {
				return nil, ErrActiveRangebanExists
			} else if err != nil {
				return nil, oops.New(err, "failed to update rangeban %d", id)
			}

			actionType := models.ModActionRangebanUpdate
			if current.IsActive && !updated.IsActive {
				actionType = models.ModActionUnrangeban
				lifted = true
			}
			_, err = modlog.Write(ctx, tx, modlog.Entry{
				AdminUserID: patch.AdminUserID,
				ActionType:  actionType,
				BoardID:     updated.BoardID,
				Reason:      patch.Reason,
				RangebanID:  &updated.ID,
			})
			if err != nil {
				return nil, err
			}

			return updated, nil
		},
		db.SideEffect[*models.Rangeban]{
			Name: "publish rangeban update",
			Run: func(ctx context.Context, rangeban *models.Rangeban) error {
				if rangeban == nil || patch.IsEmpty() {
					return nil
				}
				eventType := notify.EventRangebanUpdated
				if lifted {
					eventType = notify.EventRangebanLifted
				}
				return s.notifySideEffect(eventType).Run(ctx, rangeban)
			},
		},
	)
	if err != nil {
		return nil, err
	}
	return rangeban, nil
}
