package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Executor abstracts pgx.Tx and *pgxpool.Pool so appends can join the
// caller's transaction. Appending inside the same transaction as the primary
// record is what makes "mutate + log" atomic.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Log is the append-only write side of the audit trail.
type Log struct {
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewLog constructs a Log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (l *Log) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Stamp assigns an id and a monotonic-safe timestamp to events that carry
// none. Wall clocks can step backwards; appended events must not.
func (l *Log) Stamp(ev Event) Event {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		l.mu.Lock()
		ts := l.now().UTC()
		if !ts.After(l.last) {
			ts = l.last.Add(time.Microsecond)
		}
		l.last = ts
		l.mu.Unlock()
		ev.OccurredAt = ts
	}
	return ev
}

// Append validates, stamps, and persists one event via ex. The insert never
// overwrites: a duplicate id fails on the primary key.
func (l *Log) Append(ctx context.Context, ex Executor, ev Event) (Event, error) {
	if l == nil {
		return Event{}, errors.New("audit: log not initialised")
	}
	if ex == nil {
		return Event{}, errors.New("audit: executor required")
	}
	ev = l.Stamp(ev)
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("audit: marshal payload: %w", err)
	}
	var correlation any
	if ev.CorrelationID != uuid.Nil {
		correlation = ev.CorrelationID
	}
	_, err = ex.Exec(ctx, `
INSERT INTO audit_events
	(id, company_id, event_type, actor_id, entity_type, entity_id, correlation_id, payload, payment_id, ledger_entry_id, invoice_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.ID, ev.CompanyID, string(ev.Type), ev.ActorID, string(ev.Entity), ev.EntityID,
		correlation, payload, ev.PaymentID, ev.LedgerEntryID, ev.InvoiceID, ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("audit: append: %w", err)
	}
	return ev, nil
}
