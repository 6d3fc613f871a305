package capital

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/platform/db"
)

// Repository persists capital events in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *audit.Log
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool, log *audit.Log) *Repository {
	return &Repository{pool: pool, log: log}
}

const capitalColumns = `id, company_id, kind, amount, shareholder_id,
	decision_ref, decision_note, decision_by, decision_at,
	payment_ref, payment_note, payment_by, payment_at,
	ledger_ref, ledger_note, ledger_by, ledger_at,
	created_at, updated_at`

func scanCapitalEvent(row pgx.Row) (CapitalEvent, error) {
	var (
		e                      CapitalEvent
		kind                   string
		decRef, decNote, decBy *string
		payRef, payNote, payBy *string
		ledRef, ledNote, ledBy *string
		decAt, payAt, ledAt    *time.Time
	)
	err := row.Scan(&e.ID, &e.CompanyID, &kind, &e.Amount, &e.ShareholderID,
		&decRef, &decNote, &decBy, &decAt,
		&payRef, &payNote, &payBy, &payAt,
		&ledRef, &ledNote, &ledBy, &ledAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CapitalEvent{}, ErrCapitalEventNotFound
		}
		return CapitalEvent{}, fmt.Errorf("capital: scan event: %w", err)
	}
	e.Kind = EventKind(kind)
	e.Decision = buildLink(decRef, decNote, decBy, decAt)
	e.Payment = buildLink(payRef, payNote, payBy, payAt)
	e.LedgerEntry = buildLink(ledRef, ledNote, ledBy, ledAt)
	return e, nil
}

func buildLink(ref, note, by *string, at *time.Time) *Link {
	if ref == nil {
		return nil
	}
	link := Link{Ref: *ref}
	if note != nil {
		link.Note = *note
	}
	if by != nil {
		link.AttachedBy = *by
	}
	if at != nil {
		link.AttachedAt = *at
	}
	return &link
}

// Get fetches a capital event by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (CapitalEvent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+capitalColumns+` FROM capital_events WHERE id = $1`, id)
	return scanCapitalEvent(row)
}

// Insert creates a new capital event and its creation audit event in one
// transaction.
func (r *Repository) Insert(ctx context.Context, id uuid.UUID, in CreateInput, ev audit.Event) (CapitalEvent, audit.Event, error) {
	var event CapitalEvent
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRow(ctx, `
INSERT INTO capital_events (id, company_id, kind, amount, shareholder_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING `+capitalColumns,
			id, in.CompanyID, string(in.Kind), in.Amount, in.ShareholderID, now)
		var err error
		event, err = scanCapitalEvent(row)
		if err != nil {
			return err
		}
		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return CapitalEvent{}, audit.Event{}, err
	}
	return event, ev, nil
}

var linkColumnPrefix = map[LinkKind]string{
	LinkDecision:    "decision",
	LinkPayment:     "payment",
	LinkLedgerEntry: "ledger",
}

// SetLink stores one leg of the triple link atomically with its audit event.
// The row is locked and the stored ref re-read under the lock, so an attach
// racing another attach of the same kind loses with ErrConcurrentModification
// instead of silently overwriting the winner's reference.
func (r *Repository) SetLink(ctx context.Context, id uuid.UUID, kind LinkKind, previousRef *string, link Link, ev audit.Event) (CapitalEvent, audit.Event, error) {
	prefix, ok := linkColumnPrefix[kind]
	if !ok {
		return CapitalEvent{}, audit.Event{}, fmt.Errorf("capital: unknown link kind %q", kind)
	}
	var event CapitalEvent
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+capitalColumns+` FROM capital_events WHERE id = $1 FOR UPDATE`, id)
		current, err := scanCapitalEvent(row)
		if err != nil {
			return err
		}
		stored := current.LinkFor(kind)
		switch {
		case previousRef == nil && stored != nil:
			return ErrConcurrentModification
		case previousRef != nil && (stored == nil || stored.Ref != *previousRef):
			return ErrConcurrentModification
		}
		row = tx.QueryRow(ctx, fmt.Sprintf(`
UPDATE capital_events
SET %[1]s_ref = $1, %[1]s_note = $2, %[1]s_by = $3, %[1]s_at = $4, updated_at = NOW()
WHERE id = $5
RETURNING `+capitalColumns, prefix),
			link.Ref, link.Note, link.AttachedBy, link.AttachedAt, id)
		event, err = scanCapitalEvent(row)
		if err != nil {
			return err
		}
		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return CapitalEvent{}, audit.Event{}, err
	}
	return event, ev, nil
}
