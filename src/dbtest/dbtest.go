/*
Package dbtest gives integration tests a freshly migrated Postgres database.

Tests using it are skipped unless BOARDMOD_TEST_DSN points at a database where
the tests may create and drop schemas, e.g.

	BOARDMOD_TEST_DSN="user=boardmod password=password host=localhost dbname=boardmod_test"
*/
package dbtest

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"git.handmade.network/hmn/boardmod/src/migration"
	"git.handmade.network/hmn/boardmod/src/migration/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const DSNEnvVar = "BOARDMOD_TEST_DSN"

// Returns a pool on a private schema that has been migrated to the latest
// version. The schema is dropped when the test finishes, so packages can run
// their database tests concurrently against the same database.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(DSNEnvVar)
	if dsn == "" {
		t.Skipf("%s not set; skipping database test", DSNEnvVar)
	}

	ctx := context.Background()
	schema := "boardmod_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer admin.Close(ctx)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			t.Logf("failed to connect to drop test schema %s: %v", schema, err)
			return
		}
		defer conn.Close(context.Background())
		if _, err := conn.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("failed to drop test schema %s: %v", schema, err)
		}
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migration.Migrate(ctx, pool, types.MigrationVersion{}, io.Discard))

	return pool
}

// Inserts an admin account directly and returns its id.
func CreateAdmin(t *testing.T, pool *pgxpool.Pool, username, role string, boards ...string) int {
	t.Helper()

	if boards == nil {
		boards = []string{}
	}

	var id int
	err := pool.QueryRow(context.Background(),
		`INSERT INTO admin_user (username, role, boards) VALUES ($1, $2, $3) RETURNING id`,
		username, role, boards,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
