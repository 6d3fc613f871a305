package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads persisted audit events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Query returns events matching filters, ordered by occurred_at then insert
// order. Append order is the only order; nothing mutates it after write.
func (r *Repository) Query(ctx context.Context, f Filters) ([]Event, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("audit: repository not initialised")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var (
		clauses = []string{"company_id = $1"}
		args    = []any{f.CompanyID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "occurred_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "occurred_at <= "+arg(f.To))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		clauses = append(clauses, "event_type = ANY("+arg(types)+")")
	}
	if f.Entity != "" {
		clauses = append(clauses, "entity_type = "+arg(string(f.Entity)))
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id = "+arg(f.EntityID))
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id = "+arg(f.ActorID))
	}
	if f.CorrelationID != uuid.Nil {
		clauses = append(clauses, "correlation_id = "+arg(f.CorrelationID))
	}

	query := `
SELECT id, company_id, event_type, actor_id, entity_type, entity_id, correlation_id, payload, payment_id, ledger_entry_id, invoice_id, occurred_at
FROM audit_events
WHERE ` + strings.Join(clauses, " AND ") + `
ORDER BY occurred_at ASC, seq ASC`
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev          Event
			eventType   string
			entityType  string
			correlation *uuid.UUID
			payload     []byte
		)
		if err := rows.Scan(&ev.ID, &ev.CompanyID, &eventType, &ev.ActorID, &entityType, &ev.EntityID,
			&correlation, &payload, &ev.PaymentID, &ev.LedgerEntryID, &ev.InvoiceID, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		ev.Type = EventType(eventType)
		ev.Entity = EntityKind(entityType)
		if correlation != nil {
			ev.CorrelationID = *correlation
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.Payload)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return events, nil
}

// LatestByType returns the most recent event of the given type for an entity,
// or false when none exists.
func (r *Repository) LatestByType(ctx context.Context, companyID int64, entity EntityKind, entityID string, t EventType) (Event, bool, error) {
	events, err := r.Query(ctx, Filters{
		CompanyID: companyID,
		Types:     []EventType{t},
		Entity:    entity,
		EntityID:  entityID,
	})
	if err != nil {
		return Event{}, false, err
	}
	if len(events) == 0 {
		return Event{}, false, nil
	}
	return events[len(events)-1], true, nil
}
