package capital

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind enumerates capital event types.
type EventKind string

const (
	KindContribution EventKind = "contribution"
	KindWithdrawal   EventKind = "withdrawal"
	KindDividend     EventKind = "dividend"
)

// Valid reports whether k is a defined capital event kind.
func (k EventKind) Valid() bool {
	return k == KindContribution || k == KindWithdrawal || k == KindDividend
}

// LinkKind names one leg of the triple accounting link.
type LinkKind string

const (
	LinkDecision    LinkKind = "decision"
	LinkPayment     LinkKind = "payment"
	LinkLedgerEntry LinkKind = "ledger"
)

// Valid reports whether k is a defined link kind.
func (k LinkKind) Valid() bool {
	return k == LinkDecision || k == LinkPayment || k == LinkLedgerEntry
}

// Link is one attached reference: the authority decision, the money
// movement, or the accounting posting.
type Link struct {
	Ref        string
	Note       string
	AttachedBy string
	AttachedAt time.Time
}

// CapitalEvent is a contribution, withdrawal, or dividend. It is complete
// once all three links are present; once any link exists it is a financial
// record and is never deleted.
type CapitalEvent struct {
	ID            uuid.UUID
	CompanyID     int64
	Kind          EventKind
	Amount        decimal.Decimal
	ShareholderID string
	Decision      *Link
	Payment       *Link
	LedgerEntry   *Link
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Completeness holds the derived triple-link flags. The flags are always
// computed from the links so they can never drift.
type Completeness struct {
	HasDecision    bool `json:"has_decision"`
	HasPayment     bool `json:"has_payment"`
	HasLedgerEntry bool `json:"has_ledger_entry"`
}

// Complete reports whether all three legs are present.
func (c Completeness) Complete() bool {
	return c.HasDecision && c.HasPayment && c.HasLedgerEntry
}

// Completeness derives the triple-link flags from the attached links.
func (e CapitalEvent) Completeness() Completeness {
	return Completeness{
		HasDecision:    e.Decision != nil,
		HasPayment:     e.Payment != nil,
		HasLedgerEntry: e.LedgerEntry != nil,
	}
}

// LinkFor returns the currently attached link of the given kind.
func (e CapitalEvent) LinkFor(kind LinkKind) *Link {
	switch kind {
	case LinkDecision:
		return e.Decision
	case LinkPayment:
		return e.Payment
	case LinkLedgerEntry:
		return e.LedgerEntry
	}
	return nil
}

// ErrCapitalEventNotFound indicates an unknown capital event id.
var ErrCapitalEventNotFound = errors.New("capital: event not found")

// ErrConcurrentModification indicates the link changed between the caller's
// read and the write. The caller retries against the fresh state.
var ErrConcurrentModification = errors.New("capital: event modified concurrently")

// LinkConflictError reports a re-attach that would overwrite an existing link
// without recording a correction.
type LinkConflictError struct {
	Kind LinkKind
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("capital: %s link already attached; pass a correction note to replace it", e.Kind)
}

// CreateInput captures validation rules for new capital events.
type CreateInput struct {
	CompanyID     int64
	Kind          EventKind
	Amount        decimal.Decimal
	ShareholderID string
	ActorID       string
}

// Validate ensures the create input is coherent.
func (in CreateInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("capital: company id required")
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("capital: unknown event kind %q", in.Kind)
	}
	if !in.Amount.IsPositive() {
		return errors.New("capital: amount must be positive")
	}
	if strings.TrimSpace(in.ShareholderID) == "" {
		return errors.New("capital: shareholder required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return errors.New("capital: actor required")
	}
	return nil
}

// AttachLinkInput bundles parameters for attaching one link. CorrectionNote
// is mandatory when replacing an existing link of the same kind.
type AttachLinkInput struct {
	CapitalEventID uuid.UUID
	Kind           LinkKind
	Ref            string
	ActorID        string
	CorrectionNote string
}

// Validate checks required attach fields.
func (in AttachLinkInput) Validate() error {
	if in.CapitalEventID == uuid.Nil {
		return errors.New("capital: event id required")
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("capital: unknown link kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Ref) == "" {
		return errors.New("capital: link reference required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return errors.New("capital: actor required")
	}
	return nil
}
