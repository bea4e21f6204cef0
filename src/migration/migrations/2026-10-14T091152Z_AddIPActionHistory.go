package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/boardmod/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddIPActionHistory{})
}

type AddIPActionHistory struct{}

func (m AddIPActionHistory) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 10, 14, 9, 11, 52, 0, time.UTC))
}

func (m AddIPActionHistory) Name() string {
	return "AddIPActionHistory"
}

func (m AddIPActionHistory) Description() string {
	return "Per-IP audit history, separate from the moderation ledger"
}

func (m AddIPActionHistory) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE ip_action_history (
			id SERIAL NOT NULL PRIMARY KEY,
			ip_address VARCHAR(64) NOT NULL,
			action_type VARCHAR(64) NOT NULL,
			admin_user_id INT,
			admin_username VARCHAR(255),
			board_id VARCHAR(64),
			thread_id INT,
			post_id INT,
			ban_id INT REFERENCES bans (id) ON DELETE SET NULL,
			reason TEXT,
			details JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX ip_action_history_ip ON ip_action_history (ip_address, created_at DESC);
		CREATE INDEX ip_action_history_created_at ON ip_action_history (created_at);
		`,
	)
	return err
}

func (m AddIPActionHistory) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE ip_action_history;
		`,
	)
	return err
}
