package agreement

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

// Repository persists documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *audit.Log
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool, log *audit.Log) *Repository {
	return &Repository{pool: pool, log: log}
}

const documentColumns = `id, company_id, kind, number, counterparty_name, agreement_status,
	submission_status, submission_ref, posting_status, posting_ref, posted_at,
	net_amount, tax_amount, issue_date, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var kind, status, submission, posting string
	err := row.Scan(&d.ID, &d.CompanyID, &kind, &d.Number, &d.CounterpartyName, &status,
		&submission, &d.SubmissionRef, &posting, &d.PostingRef, &d.PostedAt,
		&d.NetAmount, &d.TaxAmount, &d.IssueDate, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, fmt.Errorf("agreement: scan document: %w", err)
	}
	d.Kind = Kind(kind)
	d.Status = Status(status)
	d.Submission = SubmissionStatus(submission)
	d.Posting = PostingStatus(posting)
	return d, nil
}

// GetDocument fetches a document by id.
func (r *Repository) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// InsertDocument creates a new draft document and its creation audit event
// in one transaction.
func (r *Repository) InsertDocument(ctx context.Context, id uuid.UUID, in CreateDocumentInput, ev audit.Event) (Document, audit.Event, error) {
	var doc Document
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRow(ctx, `
INSERT INTO documents
	(id, company_id, kind, number, counterparty_name, agreement_status,
	 submission_status, submission_ref, posting_status, posting_ref,
	 net_amount, tax_amount, issue_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, '', $9, $10, $11, $12, $12)
RETURNING `+documentColumns,
			id, in.CompanyID, string(in.Kind), in.Number, in.CounterpartyName, string(StatusDraft),
			string(SubmissionNone), string(PostingUnposted),
			in.NetAmount, in.TaxAmount, in.IssueDate, now)
		var err error
		doc, err = scanDocument(row)
		if err != nil {
			return err
		}
		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return Document{}, audit.Event{}, err
	}
	return doc, ev, nil
}

// ApplyTransition flips the agreement status conditioned on the previously
// read status still holding, and appends the audit event in the same
// transaction. A zero-row update means another writer got there first.
func (r *Repository) ApplyTransition(ctx context.Context, id uuid.UUID, from, to Status, ev audit.Event) (audit.Event, error) {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE documents SET agreement_status = $1, updated_at = NOW()
WHERE id = $2 AND agreement_status = $3`,
			string(to), id, string(from))
		if err != nil {
			return fmt.Errorf("agreement: apply transition: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT true FROM documents WHERE id = $1`, id).Scan(&exists); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrDocumentNotFound
				}
				return err
			}
			return ErrConcurrentModification
		}
		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return audit.Event{}, err
	}
	return ev, nil
}

// UpdateSubmission stores the gateway-reported submission status atomically
// with its audit event.
func (r *Repository) UpdateSubmission(ctx context.Context, id uuid.UUID, status SubmissionStatus, reference string, ev audit.Event) (audit.Event, error) {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE documents SET submission_status = $1, submission_ref = $2, updated_at = NOW()
WHERE id = $3`,
			string(status), reference, id)
		if err != nil {
			return fmt.Errorf("agreement: update submission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDocumentNotFound
		}
		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return audit.Event{}, err
	}
	return ev, nil
}

// UpdatePosting stores the ledger-reported posting status atomically with its
// audit event.
func (r *Repository) UpdatePosting(ctx context.Context, id uuid.UUID, status PostingStatus, reference string, postedAt *time.Time, ev audit.Event) (audit.Event, error) {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE documents SET posting_status = $1, posting_ref = $2, posted_at = $3, updated_at = NOW()
WHERE id = $4`,
			string(status), reference, postedAt, id)
		if err != nil {
			return fmt.Errorf("agreement: update posting: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDocumentNotFound
		}
		ev, err = r.log.Append(ctx, tx, ev)
		return err
	})
	if err != nil {
		return audit.Event{}, err
	}
	return ev, nil
}
