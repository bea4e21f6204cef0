package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/boardmod/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(InitialSchema{})
}

type InitialSchema struct{}

func (m InitialSchema) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 10, 12, 14, 3, 27, 0, time.UTC))
}

func (m InitialSchema) Name() string {
	return "InitialSchema"
}

func (m InitialSchema) Description() string {
	return "Admin accounts, bans, rangebans, and the moderation ledger"
}

func (m InitialSchema) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE admin_user (
			id SERIAL NOT NULL PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL CHECK (role IN ('admin', 'moderator', 'janitor')),
			boards VARCHAR(64) ARRAY NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX admin_user_username ON admin_user (LOWER(username));

		CREATE TABLE admin_session (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES admin_user (id) ON DELETE CASCADE,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE bans (
			id SERIAL NOT NULL PRIMARY KEY,
			ip_address VARCHAR(64) NOT NULL,
			board_id VARCHAR(64),
			reason TEXT NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			admin_user_id INT REFERENCES admin_user (id) ON DELETE SET NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			appeal_text TEXT,
			appeal_status VARCHAR(16) NOT NULL DEFAULT 'none'
				CHECK (appeal_status IN ('none', 'pending', 'approved', 'denied')),
			post_content TEXT,
			post_image_url TEXT,
			thread_id INT,
			post_id INT
		);
		CREATE INDEX bans_active_ip ON bans (ip_address) WHERE is_active;
		CREATE INDEX bans_post_id ON bans (post_id);

		CREATE TABLE rangebans (
			id SERIAL NOT NULL PRIMARY KEY,
			ban_type VARCHAR(16) NOT NULL CHECK (ban_type IN ('country', 'asn', 'ip_range')),
			ban_value VARCHAR(64) NOT NULL,
			board_id VARCHAR(64),
			reason TEXT NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			admin_user_id INT REFERENCES admin_user (id) ON DELETE SET NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE UNIQUE INDEX rangebans_one_active
			ON rangebans (ban_type, ban_value, COALESCE(board_id, ''))
			WHERE is_active;

		CREATE TABLE moderation_actions (
			id SERIAL NOT NULL PRIMARY KEY,
			admin_user_id INT REFERENCES admin_user (id) ON DELETE SET NULL,
			action_type VARCHAR(32) NOT NULL,
			board_id VARCHAR(64),
			reason TEXT,
			ip_address VARCHAR(64),
			ban_id INT REFERENCES bans (id),
			rangeban_id INT REFERENCES rangebans (id),
			thread_id INT,
			post_id INT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX moderation_actions_created_at ON moderation_actions (created_at DESC);
		`,
	)
	return err
}

func (m InitialSchema) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE moderation_actions;
		DROP TABLE rangebans;
		DROP TABLE bans;
		DROP TABLE admin_session;
		DROP TABLE admin_user;
		`,
	)
	return err
}
