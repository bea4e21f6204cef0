/*
Package rangebans stores bans on whole classes of IPs: a country, an
autonomous system, or a CIDR range, either on one board or site-wide.

At most one active rangeban can exist per (type, value, board). Rangeban
changes go to the moderation ledger only; they are not keyed by IP, so they
stay out of the IP history.
*/
package rangebans

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/notify"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/perf"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/jackc/pgx/v5"
)

var ErrActiveRangebanExists = errors.New("active rangeban already exists for this value")

type Store struct {
	conn     db.ConnOrTx
	notifier notify.Notifier
}

func NewStore(conn db.ConnOrTx, notifier notify.Notifier) *Store {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Store{
		conn:     conn,
		notifier: notifier,
	}
}

type CreateRangebanInput struct {
	BanType     models.RangebanType `json:"ban_type"`
	BanValue    string              `json:"ban_value"`
	BoardID     *string             `json:"board_id"`
	Reason      string              `json:"reason"`
	ExpiresAt   *time.Time          `json:"expires_at"`
	AdminUserID *int                `json:"-"`
}

func (in *CreateRangebanInput) normalize() error {
	if err := oops.RequireFields("ban_type", string(in.BanType), "ban_value", in.BanValue, "reason", in.Reason); err != nil {
		return err
	}
	if !in.BanType.Valid() {
		return oops.NotAllowed("Invalid ban_type", allowedTypes()...)
	}
	value, err := NormalizeValue(in.BanType, in.BanValue)
	if err != nil {
		return err
	}
	in.BanValue = value
	return nil
}

func lockKey(banType models.RangebanType, value string, boardID *string) string {
	return strings.Join([]string{"rangeban", string(banType), value, utils.OrDefault(utils.Deref(boardID), "*")}, "|")
}

/*
Creates a rangeban, failing with ErrActiveRangebanExists if an active one with
the same type, value, and board already exists.

Concurrent creates of the same tuple serialize on a transaction-scoped advisory
lock, so the existence check and the insert can't interleave. The partial
unique index on active rangebans backs this up.
*/
func (s *Store) CreateRangeban(ctx context.Context, in CreateRangebanInput) (*models.Rangeban, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	return db.CommitThen(ctx, s.conn,
		func(tx pgx.Tx) (*models.Rangeban, error) {
			_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(in.BanType, in.BanValue, in.BoardID))
			if err != nil {
				return nil, oops.New(err, "failed to lock rangeban value")
			}

			exists, err := db.QueryOneScalar[bool](ctx, tx,
				`
				---- Check for active rangeban
				SELECT EXISTS (
					SELECT 1
					FROM rangebans
					WHERE
						ban_type = $1
						AND ban_value = $2
						AND board_id IS NOT DISTINCT FROM $3
						AND is_active
				)
				`,
				in.BanType,
				in.BanValue,
				in.BoardID,
			)
			if err != nil {
				return nil, oops.New(err, "failed to check for existing rangeban")
			}
			if exists {
				return nil, ErrActiveRangebanExists
			}

			rangeban, err := db.QueryOne[models.Rangeban](ctx, tx,
				`
				---- Create rangeban
				INSERT INTO rangebans (ban_type, ban_value, board_id, reason, expires_at, admin_user_id)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING $columns
				`,
				in.BanType, in.BanValue, in.BoardID, in.Reason, in.ExpiresAt, in.AdminUserID,
			)
			if db.IsUniqueViolation(err) {
				return nil, ErrActiveRangebanExists
			} else if err != nil {
				return nil, oops.New(err, "failed to insert rangeban")
			}

			_, err = modlog.Write(ctx, tx, modlog.Entry{
				AdminUserID: in.AdminUserID,
				ActionType:  models.ModActionRangeban,
				BoardID:     rangeban.BoardID,
				Reason:      &rangeban.Reason,
				RangebanID:  &rangeban.ID,
			})
			if err != nil {
				return nil, err
			}

			return rangeban, nil
		},
		s.notifySideEffect(notify.EventRangebanCreated),
	)
}

// Active rangebans, newest first. With a board, only rangebans that apply to
// that board, including site-wide ones.
func (s *Store) GetActiveRangebans(ctx context.Context, boardID *string) ([]*models.Rangeban, error) {
	return s.ListRangebans(ctx, RangebanFilter{BoardID: boardID, IncludeGlobal: true})
}

type RangebanFilter struct {
	BoardID         *string
	IncludeGlobal   bool // with BoardID, also include site-wide rangebans
	BanType         models.RangebanType
	IncludeInactive bool

	Limit, Offset int
}

func (s *Store) ListRangebans(ctx context.Context, f RangebanFilter) ([]*models.Rangeban, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "List rangebans").End()

	var qb db.QueryBuilder
	qb.Add(
		`
		---- List rangebans
		SELECT $columns
		FROM rangebans
		WHERE TRUE
		`,
	)
	if !f.IncludeInactive {
		qb.Add(`AND is_active`)
	}
	if f.BoardID != nil {
		if f.IncludeGlobal {
			qb.Add(`AND (board_id = $? OR board_id IS NULL)`, *f.BoardID)
		} else {
			qb.Add(`AND board_id = $?`, *f.BoardID)
		}
	}
	if f.BanType != "" {
		qb.Add(`AND ban_type = $?`, f.BanType)
	}
	qb.Add(`ORDER BY created_at DESC, id DESC`)
	if f.Limit > 0 {
		qb.Add(`LIMIT $? OFFSET $?`, f.Limit, utils.Max(f.Offset, 0))
	}

	rangebans, err := db.Query[models.Rangeban](ctx, s.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch rangebans")
	}
	return rangebans, nil
}

// Returns nil if there is no rangeban with that id.
func (s *Store) GetRangebanByID(ctx context.Context, id int) (*models.Rangeban, error) {
	rangeban, err := db.QueryOne[models.Rangeban](ctx, s.conn,
		`
		---- Fetch rangeban
		SELECT $columns
		FROM rangebans
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch rangeban %d", id)
	}
	return rangeban, nil
}

func (s *Store) CheckCountryBanned(ctx context.Context, countryCode string, boardID string) (*models.Rangeban, error) {
	return s.checkBanned(ctx, "Check country rangeban", `ban_value = $?`, models.RangebanTypeCountry, strings.ToUpper(countryCode), boardID)
}

func (s *Store) CheckASNBanned(ctx context.Context, asn uint, boardID string) (*models.Rangeban, error) {
	return s.checkBanned(ctx, "Check ASN rangeban", `ban_value = $?`, models.RangebanTypeASN, formatASN(asn), boardID)
}

// Postgres may evaluate WHERE conditions in any order, so the cast is only
// reached for ip_range rows. Country and ASN values are not valid CIDRs.
const ipRangeCondition = `CASE WHEN ban_type = 'ip_range' THEN $?::INET <<= ban_value::CIDR ELSE FALSE END`

// Matches ip against every active CIDR rangeban. An ip that doesn't parse
// matches nothing.
func (s *Store) CheckIPRangeBanned(ctx context.Context, ip string, boardID string) (*models.Rangeban, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, nil
	}
	return s.checkBanned(ctx, "Check IP range rangeban", ipRangeCondition, models.RangebanTypeIPRange, addr.Unmap().String(), boardID)
}

func (s *Store) checkBanned(
	ctx context.Context,
	name string,
	valueCondition string,
	banType models.RangebanType,
	value string,
	boardID string,
) (*models.Rangeban, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", name).End()

	var qb db.QueryBuilder
	qb.Add("---- " + name)
	qb.Add(
		`
		SELECT $columns
		FROM rangebans
		WHERE
			ban_type = $?
			AND is_active
			AND (expires_at IS NULL OR expires_at > NOW())
			AND (board_id = $? OR board_id IS NULL)
		`,
		banType,
		boardID,
	)
	qb.Add(`AND `+valueCondition, value)
	qb.Add(`ORDER BY created_at DESC, id DESC LIMIT 1`)

	rangeban, err := db.QueryOne[models.Rangeban](ctx, s.conn, qb.String(), qb.Args()...)
	if errors.Is(err, db.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, oops.New(err, "failed to check %s rangeban", banType)
	}
	return rangeban, nil
}

type TypeCount struct {
	BanType models.RangebanType `db:"ban_type" json:"ban_type"`
	Count   int                 `db:"count" json:"count"`
}

type CountryCount struct {
	CountryCode string `db:"country_code" json:"country_code"`
	Count       int    `db:"count" json:"count"`
}

type Stats struct {
	ByType       []*TypeCount    `json:"by_type"`
	TopCountries []*CountryCount `json:"top_countries"`
}

const topCountriesLimit = 10

// Counts of active rangebans, by type and by most-banned country.
func (s *Store) GetRangebanStats(ctx context.Context) (*Stats, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Rangeban stats").End()

	byType, err := db.Query[TypeCount](ctx, s.conn,
		`
		---- Count rangebans by type
		SELECT $columns
		FROM (
			SELECT ban_type, COUNT(*) AS count
			FROM rangebans
			WHERE is_active
			GROUP BY ban_type
		) AS by_type
		ORDER BY count DESC, ban_type
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to count rangebans by type")
	}

	topCountries, err := db.Query[CountryCount](ctx, s.conn,
		`
		---- Count rangebans by country
		SELECT $columns
		FROM (
			SELECT ban_value AS country_code, COUNT(*) AS count
			FROM rangebans
			WHERE is_active AND ban_type = $1
			GROUP BY ban_value
		) AS by_country
		ORDER BY count DESC, country_code
		LIMIT $2
		`,
		models.RangebanTypeCountry,
		topCountriesLimit,
	)
	if err != nil {
		return nil, oops.New(err, "failed to count rangebans by country")
	}

	if byType == nil {
		byType = []*TypeCount{}
	}
	if topCountries == nil {
		topCountries = []*CountryCount{}
	}

	return &Stats{
		ByType:       byType,
		TopCountries: topCountries,
	}, nil
}

func (s *Store) notifySideEffect(eventType string) db.SideEffect[*models.Rangeban] {
	return db.SideEffect[*models.Rangeban]{
		Name: "publish " + eventType,
		Run: func(ctx context.Context, rangeban *models.Rangeban) error {
			if rangeban == nil {
				return nil
			}
			return s.notifier.Publish(ctx, notify.Event{
				Type:       eventType,
				BoardID:    rangeban.BoardID,
				RangebanID: &rangeban.ID,
				Data:       rangeban,
			})
		},
	}
}
