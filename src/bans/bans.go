/*
Package bans stores bans on individual IP addresses.

Every mutation writes the ban row and its moderation ledger entry in one
transaction. The IP history entry and the change notification happen only
after that transaction commits, and their failures are logged, not returned:
the history table references bans by foreign key, so it can't be written
before the ban exists, and losing a history row must not lose the ban.
*/
package bans

import (
	"context"
	"errors"
	"time"

	"git.handmade.network/hmn/boardmod/src/auditlog"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/logging"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/notify"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/perf"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/jackc/pgx/v5"
)

const postPreviewLength = 100

// The IP history, as far as the ban store is concerned.
type AuditRecorder interface {
	RecordAction(ctx context.Context, in auditlog.RecordInput) (*models.IPActionHistoryEntry, error)
}

type Store struct {
	conn     db.ConnOrTx
	audit    AuditRecorder
	notifier notify.Notifier
}

func NewStore(conn db.ConnOrTx, audit AuditRecorder, notifier notify.Notifier) *Store {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Store{
		conn:     conn,
		audit:    audit,
		notifier: notifier,
	}
}

type CreateBanInput struct {
	IPAddress   string     `json:"ip_address"`
	BoardID     *string    `json:"board_id"`
	Reason      string     `json:"reason"`
	ExpiresAt   *time.Time `json:"expires_at"`
	AdminUserID *int       `json:"-"`

	PostContent  *string `json:"post_content"`
	PostImageURL *string `json:"post_image_url"`
	ThreadID     *int    `json:"thread_id"`
	PostID       *int    `json:"post_id"`
}

func (s *Store) CreateBan(ctx context.Context, in CreateBanInput) (*models.Ban, error) {
	if err := oops.RequireFields("ip_address", in.IPAddress, "reason", in.Reason); err != nil {
		return nil, err
	}

	return db.CommitThen(ctx, s.conn,
		func(tx pgx.Tx) (*models.Ban, error) {
			ban, err := db.QueryOne[models.Ban](ctx, tx,
				`
				---- Create ban
				INSERT INTO bans (
					ip_address, board_id, reason, expires_at, admin_user_id,
					post_content, post_image_url, thread_id, post_id
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING $columns
				`,
				in.IPAddress, in.BoardID, in.Reason, in.ExpiresAt, in.AdminUserID,
				in.PostContent, in.PostImageURL, in.ThreadID, in.PostID,
			)
			if err != nil {
				return nil, oops.New(err, "failed to insert ban")
			}

			_, err = modlog.Write(ctx, tx, modlog.Entry{
				AdminUserID: in.AdminUserID,
				ActionType:  models.ModActionBan,
				BoardID:     ban.BoardID,
				Reason:      &ban.Reason,
				IPAddress:   &ban.IPAddress,
				BanID:       &ban.ID,
				ThreadID:    ban.ThreadID,
				PostID:      ban.PostID,
			})
			if err != nil {
				return nil, err
			}

			return ban, nil
		},
		db.SideEffect[*models.Ban]{
			Name: "record ban in IP history",
			Run: func(ctx context.Context, ban *models.Ban) error {
				_, err := s.audit.RecordAction(ctx, auditlog.RecordInput{
					IPAddress:     ban.IPAddress,
					ActionType:    models.IPActionBanned,
					AdminUserID:   in.AdminUserID,
					AdminUsername: s.fetchUsername(ctx, in.AdminUserID),
					BoardID:       ban.BoardID,
					ThreadID:      ban.ThreadID,
					PostID:        ban.PostID,
					BanID:         &ban.ID,
					Reason:        &ban.Reason,
					Details:       banDetails(ban),
				})
				return err
			},
		},
		s.notifySideEffect(notify.EventBanCreated),
	)
}

func banDetails(ban *models.Ban) map[string]any {
	details := map[string]any{
		"expires_at":           nil,
		"is_global":            ban.IsGlobal(),
		"post_content_preview": nil,
		"had_image":            ban.PostImageURL != nil && *ban.PostImageURL != "",
	}
	if ban.ExpiresAt != nil {
		details["expires_at"] = ban.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if ban.PostContent != nil {
		details["post_content_preview"] = utils.TruncateRunes(*ban.PostContent, postPreviewLength)
	}
	return details
}

// Active bans, newest first. With a board, only bans that apply to that board,
// which always includes global bans.
func (s *Store) GetActiveBans(ctx context.Context, boardID *string) ([]*models.Ban, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Fetch active bans").End()

	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch active bans
		SELECT $columns
		FROM bans
		WHERE is_active
		`,
	)
	if boardID != nil {
		qb.Add(`AND (board_id = $? OR board_id IS NULL)`, *boardID)
	}
	qb.Add(`ORDER BY created_at DESC, id DESC`)

	bans, err := db.Query[models.Ban](ctx, s.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch active bans")
	}
	return bans, nil
}

// Returns nil if there is no ban with that id.
func (s *Store) GetBanByID(ctx context.Context, id int) (*models.Ban, error) {
	ban, err := db.QueryOne[models.Ban](ctx, s.conn,
		`
		---- Fetch ban
		SELECT $columns
		FROM bans
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch ban %d", id)
	}
	return ban, nil
}

/*
Returns the ban currently blocking ip on boardID, or nil. Inactive and expired
bans never match. If several bans match, the most recent one wins.

This runs on every guarded request.
*/
func (s *Store) CheckIPBanned(ctx context.Context, ip string, boardID string) (*models.Ban, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Check IP ban").End()

	ban, err := db.QueryOne[models.Ban](ctx, s.conn,
		`
		---- Check IP ban
		SELECT $columns
		FROM bans
		WHERE
			ip_address = $1
			AND is_active
			AND (expires_at IS NULL OR expires_at > NOW())
			AND (board_id = $2 OR board_id IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		`,
		ip,
		boardID,
	)
	if errors.Is(err, db.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, oops.New(err, "failed to check IP ban")
	}
	return ban, nil
}

// Bans issued for a post, for showing "user was banned for this post".
func (s *Store) GetBansByPostID(ctx context.Context, postID int, boardID string) ([]*models.Ban, error) {
	bans, err := db.Query[models.Ban](ctx, s.conn,
		`
		---- Fetch bans by post
		SELECT $columns
		FROM bans
		WHERE
			post_id = $1
			AND (board_id = $2 OR board_id IS NULL)
		ORDER BY created_at DESC, id DESC
		`,
		postID,
		boardID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch bans for post %d", postID)
	}
	return bans, nil
}

type BanFilter struct {
	BoardID         *string // bans scoped to this board; global bans are not included
	GlobalOnly      bool
	IPAddress       string
	AppealStatus    models.AppealStatus // if empty, any status
	IncludeInactive bool

	Limit, Offset int // if Limit is zero, no pagination
}

// Ban listing for the admin panel. Unlike GetActiveBans, this can include
// lifted bans and does not fold global bans into board listings.
func (s *Store) ListBans(ctx context.Context, f BanFilter) ([]*models.Ban, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "List bans").End()

	var qb db.QueryBuilder
	qb.Add(
		`
		---- List bans
		SELECT $columns
		FROM bans
		WHERE TRUE
		`,
	)
	if !f.IncludeInactive {
		qb.Add(`AND is_active`)
	}
	if f.GlobalOnly {
		qb.Add(`AND board_id IS NULL`)
	} else if f.BoardID != nil {
		qb.Add(`AND board_id = $?`, *f.BoardID)
	}
	if f.IPAddress != "" {
		qb.Add(`AND ip_address = $?`, f.IPAddress)
	}
	if f.AppealStatus != "" {
		qb.Add(`AND appeal_status = $?`, f.AppealStatus)
	}
	qb.Add(`ORDER BY created_at DESC, id DESC`)
	if f.Limit > 0 {
		qb.Add(`LIMIT $? OFFSET $?`, f.Limit, utils.Max(f.Offset, 0))
	}

	bans, err := db.Query[models.Ban](ctx, s.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to list bans")
	}
	return bans, nil
}

func (s *Store) fetchUsername(ctx context.Context, userID *int) *string {
	if userID == nil {
		return nil
	}
	username, err := db.QueryOneScalar[string](ctx, s.conn,
		`
		---- Fetch admin username
		SELECT username FROM admin_user WHERE id = $1
		`,
		*userID,
	)
	if err != nil {
		if !errors.Is(err, db.NotFound) {
			logging.ExtractLogger(ctx).Warn().Err(err).Int("admin_user_id", *userID).Msg("failed to look up admin username")
		}
		return nil
	}
	return &username
}

func (s *Store) notifySideEffect(eventType string) db.SideEffect[*models.Ban] {
	return db.SideEffect[*models.Ban]{
		Name: "publish " + eventType,
		Run: func(ctx context.Context, ban *models.Ban) error {
			if ban == nil {
				return nil
			}
			return s.notifier.Publish(ctx, banEvent(eventType, ban))
		},
	}
}

func banEvent(eventType string, ban *models.Ban) notify.Event {
	return notify.Event{
		Type:      eventType,
		IPAddress: ban.IPAddress,
		BoardID:   ban.BoardID,
		BanID:     &ban.ID,
		Data:      ban,
	}
}
