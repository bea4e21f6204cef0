package models

import "time"

type ModerationActionType string

const (
	ModActionBan             ModerationActionType = "ban"
	ModActionUnban           ModerationActionType = "unban"
	ModActionBanUpdate       ModerationActionType = "ban_update"
	ModActionAppealSubmitted ModerationActionType = "appeal_submitted"
	ModActionAppealResponse  ModerationActionType = "appeal_response"
	ModActionRangeban        ModerationActionType = "rangeban"
	ModActionRangebanUpdate  ModerationActionType = "rangeban_update"
	ModActionUnrangeban      ModerationActionType = "unrangeban"
	ModActionViewIP          ModerationActionType = "view_ip"
)

// A ledger row written in the same transaction as the mutation it records.
type ModerationAction struct {
	ID int `db:"id" json:"id"`

	AdminUserID *int                 `db:"admin_user_id" json:"admin_user_id"`
	ActionType  ModerationActionType `db:"action_type" json:"action_type"`
	BoardID     *string              `db:"board_id" json:"board_id"`
	Reason      *string              `db:"reason" json:"reason"`
	IPAddress   *string              `db:"ip_address" json:"ip_address"`
	BanID       *int                 `db:"ban_id" json:"ban_id"`
	RangebanID  *int                 `db:"rangeban_id" json:"rangeban_id"`
	ThreadID    *int                 `db:"thread_id" json:"thread_id"`
	PostID      *int                 `db:"post_id" json:"post_id"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}
