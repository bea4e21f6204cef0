package models

import "time"

// Well-known IP history action types. Callers may record other types too.
const (
	IPActionBanned          = "banned"
	IPActionUnbanned        = "unbanned"
	IPActionBanUpdated      = "ban_updated"
	IPActionAppealSubmitted = "appeal_submitted"
	IPActionAppealApproved  = "appeal_approved"
	IPActionAppealDenied    = "appeal_denied"
	IPActionPostDeleted     = "post_deleted"
	IPActionThreadDeleted   = "thread_deleted"
	IPActionViewed          = "viewed"
)

// A denormalized audit record keyed by IP. AdminUsername is captured when the
// row is written and never joined later.
type IPActionHistoryEntry struct {
	ID int `db:"id" json:"id"`

	IPAddress     string         `db:"ip_address" json:"ip_address"`
	ActionType    string         `db:"action_type" json:"action_type"`
	AdminUserID   *int           `db:"admin_user_id" json:"admin_user_id"`
	AdminUsername *string        `db:"admin_username" json:"admin_username"`
	BoardID       *string        `db:"board_id" json:"board_id"`
	ThreadID      *int           `db:"thread_id" json:"thread_id"`
	PostID        *int           `db:"post_id" json:"post_id"`
	BanID         *int           `db:"ban_id" json:"ban_id"`
	Reason        *string        `db:"reason" json:"reason"`
	Details       map[string]any `db:"details" json:"details"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
