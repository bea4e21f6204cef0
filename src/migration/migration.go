package migration

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/migration/migrations"
	"git.handmade.network/hmn/boardmod/src/migration/types"
	"git.handmade.network/hmn/boardmod/src/oops"
	"github.com/jackc/pgx/v5"
)

var ErrUnknownVersion = errors.New("no migration with that version")

func SortedVersions() []types.MigrationVersion {
	var allVersions []types.MigrationVersion
	for migrationTime := range migrations.All {
		allVersions = append(allVersions, migrationTime)
	}
	sort.Slice(allVersions, func(i, j int) bool {
		return allVersions[i].Before(allVersions[j])
	})

	return allVersions
}

func LatestVersion() types.MigrationVersion {
	versions := SortedVersions()
	if len(versions) == 0 {
		return types.MigrationVersion{}
	}
	return versions[len(versions)-1]
}

func CurrentVersion(ctx context.Context, conn db.ConnOrTx) (types.MigrationVersion, error) {
	var currentVersion time.Time
	err := conn.QueryRow(ctx, "SELECT version FROM boardmod_migration").Scan(&currentVersion)
	if err != nil {
		return types.MigrationVersion{}, err
	}
	return types.MigrationVersion(currentVersion.UTC()), nil
}

// Prints every known migration, marking the one the database is currently at.
func ListMigrations(ctx context.Context, conn db.ConnOrTx, out io.Writer) {
	currentVersion, _ := CurrentVersion(ctx, conn)
	for _, version := range SortedVersions() {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Fprintf(out, "%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
}

/*
Migrates the database forward or backward to targetVersion, one transaction per
migration. A zero targetVersion means the latest migration. Progress is written
to out.
*/
func Migrate(ctx context.Context, conn db.ConnOrTx, targetVersion types.MigrationVersion, out io.Writer) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS boardmod_migration (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	var numRows int
	err = conn.QueryRow(ctx, "SELECT COUNT(*) FROM boardmod_migration").Scan(&numRows)
	if err != nil {
		return oops.New(err, "failed to count migration rows")
	}
	if numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO boardmod_migration (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}

	currentVersion, err := CurrentVersion(ctx, conn)
	if err != nil {
		return oops.New(err, "failed to get current version")
	}
	if currentVersion.IsZero() {
		fmt.Fprintln(out, "This is the first time you have run database migrations.")
	} else {
		fmt.Fprintf(out, "Current version: %s\n", currentVersion.String())
	}

	allVersions := SortedVersions()
	if targetVersion.IsZero() {
		targetVersion = LatestVersion()
	}

	currentIndex := -1
	targetIndex := -1
	for i, version := range allVersions {
		if currentVersion.Equal(version) {
			currentIndex = i
		}
		if targetVersion.Equal(version) {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return oops.New(ErrUnknownVersion, "could not find migration with version %v", targetVersion)
	}

	if currentIndex < targetIndex {
		for i := currentIndex + 1; i <= targetIndex; i++ {
			version := allVersions[i]
			migration := migrations.All[version]
			fmt.Fprintf(out, "Applying migration %v (%v)\n", version, migration.Name())

			err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
				if err := migration.Up(ctx, tx); err != nil {
					return oops.New(err, "migration %v (%s) failed", version, migration.Name())
				}
				return setVersion(ctx, tx, version)
			})
			if err != nil {
				return err
			}
		}
	} else if currentIndex > targetIndex {
		for i := currentIndex; i > targetIndex; i-- {
			version := allVersions[i]
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = allVersions[i-1]
			}

			migration := migrations.All[version]
			fmt.Fprintf(out, "Rolling back migration %v\n", version)

			err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
				if err := migration.Down(ctx, tx); err != nil {
					return oops.New(err, "rollback of migration %v (%s) failed", version, migration.Name())
				}
				return setVersion(ctx, tx, previousVersion)
			})
			if err != nil {
				return err
			}
		}
	} else {
		fmt.Fprintln(out, "Already migrated; nothing to do.")
	}

	return nil
}

func setVersion(ctx context.Context, tx pgx.Tx, version types.MigrationVersion) error {
	_, err := tx.Exec(ctx, "UPDATE boardmod_migration SET version = $1", time.Time(version))
	if err != nil {
		return oops.New(err, "failed to update version in migrations table")
	}
	return nil
}

//go:embed migrationTemplate.txt
var migrationTemplate string

func renderMigration(name, description string, now time.Time) (filename string, source string) {
	source = migrationTemplate
	source = strings.ReplaceAll(source, "%NAME%", name)
	source = strings.ReplaceAll(source, "%DESCRIPTION%", fmt.Sprintf("%#v", description))

	nowConstructor := fmt.Sprintf("time.Date(%d, %d, %d, %d, %d, %d, 0, time.UTC)", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	source = strings.ReplaceAll(source, "%DATE%", nowConstructor)

	safeVersion := strings.ReplaceAll(types.MigrationVersion(now).String(), ":", "")
	filename = fmt.Sprintf("%v_%v.go", safeVersion, name)
	return filename, source
}

// Writes a new, empty migration into src/migration/migrations and returns its path.
func MakeMigration(name, description string) (string, error) {
	filename, source := renderMigration(name, description, time.Now().UTC())
	path := filepath.Join("src", "migration", "migrations", filename)

	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return "", oops.New(err, "failed to write migration file")
	}
	return path, nil
}
