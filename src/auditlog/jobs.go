package auditlog

import (
	"context"
	"time"

	"git.handmade.network/hmn/boardmod/src/jobs"
	"github.com/rs/zerolog"
)

func PeriodicallyCleanupOldActions(auditLog *Log, daysToKeep int, interval time.Duration) *jobs.Job {
	return jobs.Periodically("audit log cleanup", interval, true, func(ctx context.Context, logger *zerolog.Logger) error {
		deleted, err := auditLog.CleanupOldActions(ctx, daysToKeep)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Int("days_kept", daysToKeep).Msg("pruned old IP action history")
		}
		return nil
	})
}
