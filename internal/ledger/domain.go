package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodStatus enumerates accounting period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "open"
	PeriodStatusClosed PeriodStatus = "closed"
)

// Period is one accounting period keyed by (company, year, month). Periods
// come into existence implicitly on first activity; only close and reopen
// mutate them.
type Period struct {
	CompanyID       int64
	Year            int
	Month           int
	Status          PeriodStatus
	Generation      int
	ClosedAt        *time.Time
	ClosedBy        string
	SnapshotEventID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key renders the audit entity id for a period.
func Key(companyID int64, year, month int) string {
	return fmt.Sprintf("%d/%04d-%02d", companyID, year, month)
}

// TotalsSource tags where period figures came from.
type TotalsSource string

const (
	SourceLive     TotalsSource = "live"
	SourceSnapshot TotalsSource = "snapshot"
)

// Totals are period-level financial figures. For closed periods they are the
// frozen snapshot; for open periods a live aggregate.
type Totals struct {
	Revenue       decimal.Decimal
	Tax           decimal.Decimal
	DocumentCount int
	Source        TotalsSource
}

// SnapshotPayload renders totals into an audit event payload. Amounts are
// serialized as strings so the snapshot survives JSON round-trips exactly.
func (t Totals) SnapshotPayload(year, month, generation int) map[string]any {
	return map[string]any{
		"revenue":        t.Revenue.String(),
		"tax":            t.Tax.String(),
		"document_count": t.DocumentCount,
		"year":           year,
		"month":          month,
		"generation":     generation,
	}
}

// TotalsFromPayload reconstructs snapshot totals from an audit event payload.
func TotalsFromPayload(payload map[string]any) (Totals, error) {
	revenue, err := decimalField(payload, "revenue")
	if err != nil {
		return Totals{}, err
	}
	tax, err := decimalField(payload, "tax")
	if err != nil {
		return Totals{}, err
	}
	count, err := intField(payload, "document_count")
	if err != nil {
		return Totals{}, err
	}
	return Totals{Revenue: revenue, Tax: tax, DocumentCount: count, Source: SourceSnapshot}, nil
}

func decimalField(payload map[string]any, key string) (decimal.Decimal, error) {
	switch v := payload[key].(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("ledger: snapshot field %s missing or malformed", key)
	}
}

func intField(payload map[string]any, key string) (int, error) {
	switch v := payload[key].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("ledger: snapshot field %s missing or malformed", key)
	}
}

// ErrPeriodAlreadyClosed indicates a close attempt on a closed period.
var ErrPeriodAlreadyClosed = errors.New("ledger: period already closed")

// ErrClosePeriodInProgress indicates another close holds the period lock.
var ErrClosePeriodInProgress = errors.New("ledger: close already in progress for period")

// ErrPeriodNotClosed indicates a reopen attempt on an open period.
var ErrPeriodNotClosed = errors.New("ledger: period is not closed")

// ErrElevationRequired indicates reopen was requested without elevated
// authorization.
var ErrElevationRequired = errors.New("ledger: reopening a period requires elevated authorization")

// MissingSnapshotError is a data-integrity fault: the period is marked closed
// but no snapshot event exists. Figures for a closed period must never be
// re-derived from live records, so this surfaces loudly.
type MissingSnapshotError struct {
	CompanyID int64
	Year      int
	Month     int
}

func (e *MissingSnapshotError) Error() string {
	return fmt.Sprintf("ledger: period %s is closed but has no snapshot event", Key(e.CompanyID, e.Year, e.Month))
}

// PeriodInput identifies a period plus the acting user.
type PeriodInput struct {
	CompanyID int64
	Year      int
	Month     int
	ActorID   string
}

// ValidateKey checks a bare (company, year, month) triple.
func ValidateKey(companyID int64, year, month int) error {
	if companyID == 0 {
		return errors.New("ledger: company id required")
	}
	if year < 1900 || year > 9999 {
		return fmt.Errorf("ledger: year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("ledger: month %d out of range", month)
	}
	return nil
}

// Validate checks the period key and actor.
func (in PeriodInput) Validate() error {
	if err := ValidateKey(in.CompanyID, in.Year, in.Month); err != nil {
		return err
	}
	if in.ActorID == "" {
		return errors.New("ledger: actor required")
	}
	return nil
}

// CloseResult reports the outcome of a successful close.
type CloseResult struct {
	Period  Period
	Totals  Totals
	EventID uuid.UUID
}
