/*
This package contains lowish-level APIs for making queries against the Postgres database. It streamlines the process of mapping query results to Go types, while allowing you to write arbitrary SQL queries.

The primary functions are Query, QueryOne, QueryOneScalar and QueryIterator, plus WithTx and CommitThen for writes.

# Query syntax

Arguments can be provided using placeholders like $1, $2, etc. All arguments will be safely escaped and mapped from their Go type to the correct Postgres type. (This is a direct proxy to pgx.)

	activeBans, err := db.QueryOneScalar[int](ctx, conn,
		`
		SELECT COUNT(*)
		FROM bans
		WHERE
			ip_address = ANY($1)
			AND is_active = $2
		`,
		[]string{"1.2.3.4", "5.6.7.8"},
		true,
	)

(If you want to use a slice in your query, use Postgres arrays instead of IN.)

To query multiple columns at once, use a struct type with `db:"column_name"` tags and the special $columns placeholder:

	type Ban struct {
		ID        int       `db:"id"`
		IPAddress string    `db:"ip_address"`
		CreatedAt time.Time `db:"created_at"`
	}
	bans, err := db.Query[Ban](ctx, conn, `SELECT $columns FROM bans`)
	// Resulting query:
	// SELECT id, ip_address, created_at FROM bans

When a table prefix is required to disambiguate columns, especially in a JOIN, include it as $columns{prefix}:

	bans, err := db.Query[Ban](ctx, conn, `
		SELECT $columns{b}
		FROM
			bans AS b
			JOIN moderation_actions AS ma ON ma.ban_id = b.id
		WHERE ma.action_type = 'unban'
	`)
	// Resulting query:
	// SELECT b.id, b.ip_address, b.created_at FROM ...

Nullable columns should be pointer fields; NULL leaves them nil.
*/
package db
