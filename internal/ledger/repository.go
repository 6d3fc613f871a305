package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/platform/db"
)

// Repository persists accounting periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *audit.Log
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool, log *audit.Log) *Repository {
	return &Repository{pool: pool, log: log}
}

const periodColumns = `company_id, year, month, status, generation, closed_at, closed_by, snapshot_event_id, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var status string
	err := row.Scan(&p.CompanyID, &p.Year, &p.Month, &status, &p.Generation,
		&p.ClosedAt, &p.ClosedBy, &p.SnapshotEventID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Period{}, err
	}
	p.Status = PeriodStatus(status)
	return p, nil
}

// GetPeriod fetches a period row; found is false when the period has never
// been materialised (implicitly open).
func (r *Repository) GetPeriod(ctx context.Context, companyID int64, year, month int) (Period, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND year = $2 AND month = $3`, companyID, year, month)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, fmt.Errorf("ledger: get period: %w", err)
	}
	return p, true, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func aggregateLive(ctx context.Context, q rowQuerier, companyID int64, year, month int) (Totals, error) {
	row := q.QueryRow(ctx, `
SELECT COALESCE(SUM(net_amount), 0), COALESCE(SUM(tax_amount), 0), COUNT(*)
FROM documents
WHERE company_id = $1
  AND kind = 'invoice'
  AND agreement_status NOT IN ('cancelled', 'rejected')
  AND date_part('year', issue_date) = $2
  AND date_part('month', issue_date) = $3`, companyID, year, month)

	var t Totals
	if err := row.Scan(&t.Revenue, &t.Tax, &t.DocumentCount); err != nil {
		return Totals{}, fmt.Errorf("ledger: aggregate live: %w", err)
	}
	t.Source = SourceLive
	return t, nil
}

// AggregateLive sums invoice documents issued in the period. Cancelled and
// rejected documents do not count toward revenue.
func (r *Repository) AggregateLive(ctx context.Context, companyID int64, year, month int) (Totals, error) {
	return aggregateLive(ctx, r.pool, companyID, year, month)
}

// ClosePeriod materialises the period row if needed, flips it to closed under
// a row lock, and appends the snapshot event in one transaction. The
// aggregate runs inside that transaction, after the lock, so the frozen
// figures cover exactly the documents visible at the moment the period
// flips; a crash mid-close leaves the period open with no orphan snapshot.
func (r *Repository) ClosePeriod(ctx context.Context, companyID int64, year, month int, actorID string, ev audit.Event) (Period, Totals, audit.Event, error) {
	var (
		period Period
		totals Totals
	)
	ev = r.log.Stamp(ev)
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		now := time.Now().UTC()
		_, err := tx.Exec(ctx, `
INSERT INTO accounting_periods (company_id, year, month, status, generation, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, $5, $5)
ON CONFLICT (company_id, year, month) DO NOTHING`,
			companyID, year, month, string(PeriodStatusOpen), now)
		if err != nil {
			return fmt.Errorf("ledger: ensure period: %w", err)
		}

		row := tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND year = $2 AND month = $3 FOR UPDATE`, companyID, year, month)
		current, err := scanPeriod(row)
		if err != nil {
			return fmt.Errorf("ledger: lock period: %w", err)
		}
		if current.Status == PeriodStatusClosed {
			return ErrPeriodAlreadyClosed
		}

		totals, err = aggregateLive(ctx, tx, companyID, year, month)
		if err != nil {
			return err
		}
		ev.Payload = totals.SnapshotPayload(year, month, current.Generation)

		row = tx.QueryRow(ctx, `
UPDATE accounting_periods
SET status = $1, closed_at = $2, closed_by = $3, snapshot_event_id = $4, updated_at = $2
WHERE company_id = $5 AND year = $6 AND month = $7
RETURNING `+periodColumns,
			string(PeriodStatusClosed), now, actorID, ev.ID, companyID, year, month)
		period, err = scanPeriod(row)
		if err != nil {
			return fmt.Errorf("ledger: close period: %w", err)
		}

		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return Period{}, Totals{}, audit.Event{}, err
	}
	return period, totals, ev, nil
}

// ReopenPeriod flips a closed period back to open and bumps the generation,
// atomically with the reopen event.
func (r *Repository) ReopenPeriod(ctx context.Context, companyID int64, year, month int, actorID string, ev audit.Event) (Period, audit.Event, error) {
	var period Period
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND year = $2 AND month = $3 FOR UPDATE`, companyID, year, month)
		current, err := scanPeriod(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPeriodNotClosed
			}
			return fmt.Errorf("ledger: lock period: %w", err)
		}
		if current.Status != PeriodStatusClosed {
			return ErrPeriodNotClosed
		}

		row = tx.QueryRow(ctx, `
UPDATE accounting_periods
SET status = $1, generation = generation + 1, closed_at = NULL, closed_by = '', snapshot_event_id = NULL, updated_at = NOW()
WHERE company_id = $2 AND year = $3 AND month = $4
RETURNING `+periodColumns,
			string(PeriodStatusOpen), companyID, year, month)
		period, err = scanPeriod(row)
		if err != nil {
			return fmt.Errorf("ledger: reopen period: %w", err)
		}

		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return Period{}, audit.Event{}, err
	}
	return period, ev, nil
}
