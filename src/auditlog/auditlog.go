/*
Package auditlog is the per-IP action history: an append-only record of every
moderation action taken against an IP address, with summaries for
investigating an IP and a retention job that prunes old rows.

Rows here are written after the mutation they describe has committed and are
never updated. Writers treat failures as best-effort.
*/
package auditlog

import (
	"context"
	"time"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/perf"
	"git.handmade.network/hmn/boardmod/src/utils"
)

const (
	DefaultActionsLimit = 50
	MaxActionsLimit     = 500

	DefaultProblematicDays       = 7
	DefaultProblematicMinActions = 3
	DefaultProblematicLimit      = 50

	DefaultStatsDays = 30
)

type Log struct {
	conn db.ConnOrTx
}

func New(conn db.ConnOrTx) *Log {
	return &Log{conn: conn}
}

type RecordInput struct {
	IPAddress     string
	ActionType    string
	AdminUserID   *int
	AdminUsername *string
	BoardID       *string
	ThreadID      *int
	PostID        *int
	BanID         *int
	Reason        *string
	Details       map[string]any
}

func (l *Log) RecordAction(ctx context.Context, in RecordInput) (*models.IPActionHistoryEntry, error) {
	if err := oops.RequireFields("ip_address", in.IPAddress, "action_type", in.ActionType); err != nil {
		return nil, err
	}
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Record IP action").End()

	details := in.Details
	if details == nil {
		details = map[string]any{}
	}

	entry, err := db.QueryOne[models.IPActionHistoryEntry](ctx, l.conn,
		`
		---- Record IP action
		INSERT INTO ip_action_history (
			ip_address, action_type, admin_user_id, admin_username, board_id,
			thread_id, post_id, ban_id, reason, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING $columns
		`,
		in.IPAddress, in.ActionType, in.AdminUserID, in.AdminUsername, in.BoardID,
		in.ThreadID, in.PostID, in.BanID, in.Reason, details,
	)
	if err != nil {
		return nil, oops.New(err, "failed to record %s action for IP", in.ActionType)
	}
	return entry, nil
}

type ActionsQuery struct {
	BoardID    *string
	ActionType string     // if empty, all types
	Since      *time.Time // inclusive
	Until      *time.Time // exclusive

	Limit, Offset int // Limit defaults to DefaultActionsLimit and is capped at MaxActionsLimit
}

// Fetches the history for one IP, newest first.
func (l *Log) GetActionsByIP(ctx context.Context, ip string, q ActionsQuery) ([]*models.IPActionHistoryEntry, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Fetch IP actions").End()

	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch IP actions
		SELECT $columns
		FROM ip_action_history
		WHERE ip_address = $?
		`,
		ip,
	)
	if q.BoardID != nil {
		qb.Add(`AND board_id = $?`, *q.BoardID)
	}
	if q.ActionType != "" {
		qb.Add(`AND action_type = $?`, q.ActionType)
	}
	if q.Since != nil {
		qb.Add(`AND created_at >= $?`, *q.Since)
	}
	if q.Until != nil {
		qb.Add(`AND created_at < $?`, *q.Until)
	}
	qb.Add(`ORDER BY created_at DESC, id DESC`)
	qb.Add(`LIMIT $? OFFSET $?`, clampLimit(q.Limit), utils.Max(q.Offset, 0))

	entries, err := db.Query[models.IPActionHistoryEntry](ctx, l.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch actions for IP")
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultActionsLimit
	}
	return utils.Min(limit, MaxActionsLimit)
}

type IPSummary struct {
	TotalActions   int        `db:"total_actions" json:"total_actions"`
	BoardsAffected int        `db:"boards_affected" json:"boards_affected"`
	BanCount       int        `db:"ban_count" json:"ban_count"`
	PostsDeleted   int        `db:"posts_deleted" json:"posts_deleted"`
	ThreadsDeleted int        `db:"threads_deleted" json:"threads_deleted"`
	FirstAction    *time.Time `db:"first_action" json:"first_action"`
	LastAction     *time.Time `db:"last_action" json:"last_action"`
	UniqueAdmins   int        `db:"unique_admins" json:"unique_admins"`
	BoardsList     []string   `db:"boards_list" json:"boards_list"`
}

/*
Aggregates an IP's whole history into one row. An IP with no history gets a
summary with zero counts and an empty BoardsList, never nil.
*/
func (l *Log) GetIPSummary(ctx context.Context, ip string) (*IPSummary, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Summarize IP").End()

	summary, err := db.QueryOne[IPSummary](ctx, l.conn,
		`
		---- Summarize IP
		SELECT $columns
		FROM (
			SELECT
				COUNT(*) AS total_actions,
				COUNT(DISTINCT board_id) AS boards_affected,
				COUNT(*) FILTER (WHERE action_type = $2) AS ban_count,
				COUNT(*) FILTER (WHERE action_type = $3) AS posts_deleted,
				COUNT(*) FILTER (WHERE action_type = $4) AS threads_deleted,
				MIN(created_at) AS first_action,
				MAX(created_at) AS last_action,
				COUNT(DISTINCT admin_user_id) AS unique_admins,
				COALESCE(
					ARRAY_AGG(DISTINCT board_id) FILTER (WHERE board_id IS NOT NULL),
					'{}'
				)::VARCHAR[] AS boards_list
			FROM ip_action_history
			WHERE ip_address = $1
		) AS summary
		`,
		ip,
		models.IPActionBanned,
		models.IPActionPostDeleted,
		models.IPActionThreadDeleted,
	)
	if err != nil {
		return nil, oops.New(err, "failed to summarize IP")
	}
	if summary.BoardsList == nil {
		summary.BoardsList = []string{}
	}
	return summary, nil
}

type ProblematicQuery struct {
	Days       int // defaults to DefaultProblematicDays
	MinActions int // defaults to DefaultProblematicMinActions
	Limit      int // defaults to DefaultProblematicLimit
}

type ProblematicIP struct {
	IPAddress      string    `db:"ip_address" json:"ip_address"`
	ActionCount    int       `db:"action_count" json:"action_count"`
	BoardsAffected int       `db:"boards_affected" json:"boards_affected"`
	BanCount       int       `db:"ban_count" json:"ban_count"`
	LastAction     time.Time `db:"last_action" json:"last_action"`
	ActionTypes    []string  `db:"action_types" json:"action_types"`
}

// IPs with at least MinActions recorded actions in the last Days days, busiest
// first. For triage, not enforcement.
func (l *Log) GetProblematicIPs(ctx context.Context, q ProblematicQuery) ([]*ProblematicIP, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Fetch problematic IPs").End()

	days := utils.OrDefault(q.Days, DefaultProblematicDays)
	minActions := utils.OrDefault(q.MinActions, DefaultProblematicMinActions)
	limit := utils.OrDefault(q.Limit, DefaultProblematicLimit)

	ips, err := db.Query[ProblematicIP](ctx, l.conn,
		`
		---- Fetch problematic IPs
		SELECT $columns
		FROM (
			SELECT
				ip_address,
				COUNT(*) AS action_count,
				COUNT(DISTINCT board_id) AS boards_affected,
				COUNT(*) FILTER (WHERE action_type = $4) AS ban_count,
				MAX(created_at) AS last_action,
				ARRAY_AGG(DISTINCT action_type)::VARCHAR[] AS action_types
			FROM ip_action_history
			WHERE created_at >= NOW() - MAKE_INTERVAL(days => $1)
			GROUP BY ip_address
			HAVING COUNT(*) >= $2
		) AS problematic
		ORDER BY action_count DESC, last_action DESC
		LIMIT $3
		`,
		days,
		minActions,
		limit,
		models.IPActionBanned,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch problematic IPs")
	}
	return ips, nil
}

type StatsQuery struct {
	Days int // defaults to DefaultStatsDays
}

type ActionStat struct {
	ActionType     string `db:"action_type" json:"action_type"`
	Count          int    `db:"count" json:"count"`
	UniqueIPs      int    `db:"unique_ips" json:"unique_ips"`
	BoardsAffected int    `db:"boards_affected" json:"boards_affected"`
}

func (l *Log) GetActionStatistics(ctx context.Context, q StatsQuery) ([]*ActionStat, error) {
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Fetch IP action statistics").End()

	stats, err := db.Query[ActionStat](ctx, l.conn,
		`
		---- Fetch IP action statistics
		SELECT $columns
		FROM (
			SELECT
				action_type,
				COUNT(*) AS count,
				COUNT(DISTINCT ip_address) AS unique_ips,
				COUNT(DISTINCT board_id) AS boards_affected
			FROM ip_action_history
			WHERE created_at >= NOW() - MAKE_INTERVAL(days => $1)
			GROUP BY action_type
		) AS stats
		ORDER BY count DESC, action_type
		`,
		utils.OrDefault(q.Days, DefaultStatsDays),
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch IP action statistics")
	}
	return stats, nil
}

// Deletes history older than daysToKeep days and returns how many rows went.
// Running it twice in a row deletes nothing the second time.
func (l *Log) CleanupOldActions(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 1 {
		return 0, &oops.ValidationError{Message: "daysToKeep must be at least 1"}
	}
	defer perf.ExtractPerf(ctx).StartBlock("SQL", "Clean up IP actions").End()

	tag, err := l.conn.Exec(ctx,
		`
		---- Clean up IP actions
		DELETE FROM ip_action_history
		WHERE created_at < NOW() - MAKE_INTERVAL(days => $1)
		`,
		daysToKeep,
	)
	if err != nil {
		return 0, oops.New(err, "failed to delete old IP actions")
	}
	return tag.RowsAffected(), nil
}
