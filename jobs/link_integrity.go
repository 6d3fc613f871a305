package jobs

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunLinkIntegrityScan counts capital events that are still missing one of
// their three links and logs the backlog so operators can chase them down.
func RunLinkIntegrityScan(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return nil
	}
	var incomplete int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM capital_events
		WHERE decision_ref IS NULL OR payment_ref IS NULL OR ledger_ref IS NULL
	`).Scan(&incomplete)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("capital link integrity scan",
			slog.String("job", "link_integrity"),
			slog.Int("incomplete", incomplete),
		)
	}
	return nil
}
