package bans

import (
	"context"
	"errors"
	"time"

	"git.handmade.network/hmn/boardmod/src/auditlog"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/notify"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/jackc/pgx/v5"
)

/*
Appeals only move forward: none to pending through SubmitAppeal, then pending
to approved or denied through UpdateBan. Approved and denied are final for a
ban. Setting a status to the value it already has is allowed and does nothing.
*/
var ErrInvalidAppealTransition = errors.New("invalid appeal status transition")

// A partial update. Only fields that are set are written.
type BanPatch struct {
	Reason       *string
	ExpiresAt    utils.Optional[*time.Time] // Some(nil) makes the ban permanent
	IsActive     *bool
	AppealStatus *models.AppealStatus

	// The moderator making the change, and an optional note explaining it.
	// Both go to the ledger and IP history, not onto the ban. Without a note,
	// a new Reason is recorded instead.
	AdminUserID *int
	Note        *string
}

func (p BanPatch) ledgerReason() *string {
	if p.Note != nil {
		return p.Note
	}
	return p.Reason
}

func (p BanPatch) IsEmpty() bool {
	return p.Reason == nil && !p.ExpiresAt.Set && p.IsActive == nil && p.AppealStatus == nil
}

func (p BanPatch) validate() error {
	if p.Reason != nil {
		if err := oops.RequireFields("reason", *p.Reason); err != nil {
			return err
		}
	}
	if p.AppealStatus != nil && !p.AppealStatus.Valid() {
		return oops.NotAllowed("Invalid appeal_status",
			string(models.AppealStatusNone),
			string(models.AppealStatusPending),
			string(models.AppealStatusApproved),
			string(models.AppealStatusDenied),
		)
	}
	return nil
}

func (p BanPatch) setClauses() []db.Chunk {
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
	if p.AppealStatus != nil {
		chunks = append(chunks, db.C(`appeal_status = $?`, *p.AppealStatus))
	}
	return chunks
}

func checkAppealTransition(from, to models.AppealStatus) error {
	if from == to {
		return nil
	}
	if from == models.AppealStatusPending && to.IsTerminal() {
		return nil
	}
	return oops.New(ErrInvalidAppealTransition, "cannot move appeal from %s to %s", from, to)
}

type banUpdate struct {
	Before *models.Ban
	After  *models.Ban
}

func (u *banUpdate) lifted() bool {
	return u.Before.IsActive && !u.After.IsActive
}

func (u *banUpdate) appealResolved() bool {
	return u.Before.AppealStatus != u.After.AppealStatus && u.After.AppealStatus.IsTerminal()
}

func (u *banUpdate) changed() bool {
	return u.Before != u.After
}

/*
Applies a partial update to a ban and returns the updated ban, or nil if there
is no ban with that id.

Lifting a ban (active to inactive) is ledgered as an unban, and resolving a
pending appeal as an appeal response; both can happen in one update. Anything
else is a plain ban update. Approving an appeal does not lift the ban by
itself: set IsActive too.
*/
func (s *Store) UpdateBan(ctx context.Context, id int, patch BanPatch) (*models.Ban, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	update, err := db.CommitThen(ctx, s.conn,
		func(tx pgx.Tx) (*banUpdate, error) {
			current, err := db.QueryOne[models.Ban](ctx, tx,
				`
				---- Lock ban for update
				SELECT $columns
				FROM bans
				WHERE id = $1
				FOR UPDATE
				`,
				id,
			)
			if errors.Is(err, db.NotFound) {
				return nil, nil
			} else if err != nil {
				return nil, oops.New(err, "failed to fetch ban %d", id)
			}

			if patch.AppealStatus != nil {
				if err := checkAppealTransition(current.AppealStatus, *patch.AppealStatus); err != nil {
					return nil, err
				}
			}

			if patch.IsEmpty() {
				return &banUpdate{Before: current, After: current}, nil
			}

			var qb db.QueryBuilder
			qb.Add(`---- Update ban`)
			qb.Add(`UPDATE bans SET`)
			qb.AddJoined(", ", patch.setClauses())
			qb.Add(`WHERE id = $? RETURNING $columns`, id)

			updated, err := db.QueryOne[models.Ban](ctx, tx, qb.String(), qb.Args()...)
			if err != nil {
				return nil, oops.New(err, "failed to update ban %d", id)
			}

			u := &banUpdate{Before: current, After: updated}
			for _, actionType := range ledgerActions(u) {
				_, err := modlog.Write(ctx, tx, modlog.Entry{
					AdminUserID: patch.AdminUserID,
					ActionType:  actionType,
					BoardID:     updated.BoardID,
					Reason:      patch.ledgerReason(),
					IPAddress:   &updated.IPAddress,
					BanID:       &updated.ID,
					ThreadID:    updated.ThreadID,
					PostID:      updated.PostID,
				})
				if err != nil {
					return nil, err
				}
			}

			return u, nil
		},
		db.SideEffect[*banUpdate]{
			Name: "record ban update in IP history",
			Run: func(ctx context.Context, u *banUpdate) error {
				if u == nil || !u.changed() {
					return nil
				}
				username := s.fetchUsername(ctx, patch.AdminUserID)
				var errs []error
				for _, actionType := range historyActions(u) {
					_, err := s.audit.RecordAction(ctx, auditlog.RecordInput{
						IPAddress:     u.After.IPAddress,
						ActionType:    actionType,
						AdminUserID:   patch.AdminUserID,
						AdminUsername: username,
						BoardID:       u.After.BoardID,
						ThreadID:      u.After.ThreadID,
						PostID:        u.After.PostID,
						BanID:         &u.After.ID,
						Reason:        patch.ledgerReason(),
						Details:       updateDetails(u),
					})
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			},
		},
		db.SideEffect[*banUpdate]{
			Name: "publish ban update",
			Run: func(ctx context.Context, u *banUpdate) error {
				if u == nil || !u.changed() {
					return nil
				}
				eventType := notify.EventBanUpdated
				if u.lifted() {
					eventType = notify.EventBanLifted
				} else if u.appealResolved() {
					eventType = notify.EventAppealResolved
				}
				return s.notifier.Publish(ctx, banEvent(eventType, u.After))
			},
		},
	)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return nil, nil
	}
	return update.After, nil
}

func ledgerActions(u *banUpdate) []models.ModerationActionType {
	var actions []models.ModerationActionType
	if u.lifted() {
		actions = append(actions, models.ModActionUnban)
	}
	if u.appealResolved() {
		actions = append(actions, models.ModActionAppealResponse)
	}
	if len(actions) == 0 {
		actions = append(actions, models.ModActionBanUpdate)
	}
	return actions
}

func historyActions(u *banUpdate) []string {
	var actions []string
	if u.lifted() {
		actions = append(actions, models.IPActionUnbanned)
	}
	if u.appealResolved() {
		if u.After.AppealStatus == models.AppealStatusApproved {
			actions = append(actions, models.IPActionAppealApproved)
		} else {
			actions = append(actions, models.IPActionAppealDenied)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, models.IPActionBanUpdated)
	}
	return actions
}

func updateDetails(u *banUpdate) map[string]any {
	details := map[string]any{
		"is_active":     u.After.IsActive,
		"appeal_status": string(u.After.AppealStatus),
		"expires_at":    nil,
	}
	if u.After.ExpiresAt != nil {
		details["expires_at"] = u.After.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if u.Before.Reason != u.After.Reason {
		details["previous_reason"] = u.Before.Reason
	}
	return details
}

/*
Files an appeal against an active ban that has not been appealed yet. Returns
nil, without touching the ban, if there is no such ban, it is inactive, or it
has already been appealed.
*/
func (s *Store) SubmitAppeal(ctx context.Context, id int, text string) (*models.Ban, error) {
	if err := oops.RequireFields("appeal_text", text); err != nil {
		return nil, err
	}

	return db.CommitThen(ctx, s.conn,
		func(tx pgx.Tx) (*models.Ban, error) {
			ban, err := db.QueryOne[models.Ban](ctx, tx,
				`
				---- Submit appeal
				UPDATE bans
				SET appeal_text = $2, appeal_status = $3
				WHERE
					id = $1
					AND is_active
					AND appeal_status = $4
				RETURNING $columns
				`,
				id,
				text,
				models.AppealStatusPending,
				models.AppealStatusNone,
			)
			if errors.Is(err, db.NotFound) {
				return nil, nil
			} else if err != nil {
				return nil, oops.New(err, "failed to submit appeal for ban %d", id)
			}

			_, err = modlog.Write(ctx, tx, modlog.Entry{
				ActionType: models.ModActionAppealSubmitted,
				BoardID:    ban.BoardID,
				IPAddress:  &ban.IPAddress,
				BanID:      &ban.ID,
				ThreadID:   ban.ThreadID,
				PostID:     ban.PostID,
			})
			if err != nil {
				return nil, err
			}

			return ban, nil
		},
		db.SideEffect[*models.Ban]{
			Name: "record appeal in IP history",
			Run: func(ctx context.Context, ban *models.Ban) error {
				if ban == nil {
					return nil
				}
				_, err := s.audit.RecordAction(ctx, auditlog.RecordInput{
					IPAddress:  ban.IPAddress,
					ActionType: models.IPActionAppealSubmitted,
					BoardID:    ban.BoardID,
					BanID:      &ban.ID,
					Details: map[string]any{
						"appeal_text_preview": utils.TruncateRunes(text, postPreviewLength),
					},
				})
				return err
			},
		},
		s.notifySideEffect(notify.EventAppealSubmitted),
	)
}
