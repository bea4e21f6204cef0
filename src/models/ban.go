package models

import "time"

type AppealStatus string

const (
	AppealStatusNone     AppealStatus = "none"
	AppealStatusPending  AppealStatus = "pending"
	AppealStatusApproved AppealStatus = "approved"
	AppealStatusDenied   AppealStatus = "denied"
)

func (s AppealStatus) Valid() bool {
	switch s {
	case AppealStatusNone, AppealStatusPending, AppealStatusApproved, AppealStatusDenied:
		return true
	}
	return false
}

// Approved and denied appeals can't be reopened. A new ban starts a new cycle.
func (s AppealStatus) IsTerminal() bool {
	return s == AppealStatusApproved || s == AppealStatusDenied
}

// A restriction on one exact IP address. Bans are never deleted; lifting a ban
// sets IsActive to false.
type Ban struct {
	ID int `db:"id" json:"id"`

	IPAddress   string     `db:"ip_address" json:"ip_address"`
	BoardID     *string    `db:"board_id" json:"board_id"` // nil means the ban is global
	Reason      string     `db:"reason" json:"reason"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at"` // nil means permanent
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	AdminUserID *int       `db:"admin_user_id" json:"admin_user_id"`
	IsActive    bool       `db:"is_active" json:"is_active"`

	AppealText   *string      `db:"appeal_text" json:"appeal_text"`
	AppealStatus AppealStatus `db:"appeal_status" json:"appeal_status"`

	// Snapshot of the post that got the user banned, shown back to them.
	PostContent  *string `db:"post_content" json:"post_content"`
	PostImageURL *string `db:"post_image_url" json:"post_image_url"`
	ThreadID     *int    `db:"thread_id" json:"thread_id"`
	PostID       *int    `db:"post_id" json:"post_id"`
}

func (b *Ban) IsGlobal() bool {
	return b.BoardID == nil
}

func (b *Ban) IsPermanent() bool {
	return b.ExpiresAt == nil
}

func (b *Ban) IsExpiredAt(t time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(t)
}

// Whether the ban restricts anyone at time t. Expired bans stay IsActive in
// the database but no longer block.
func (b *Ban) BlocksAt(t time.Time) bool {
	return b.IsActive && !b.IsExpiredAt(t)
}

func (b *Ban) AppliesToBoard(boardID string) bool {
	return b.BoardID == nil || *b.BoardID == boardID
}
