package agreement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veridoc/veridoc/internal/audit"
)

// Kind distinguishes document families with a lifecycle.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindContract Kind = "contract"
)

// Valid reports whether k is a defined document kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindContract
}

// Status is the agreement/negotiation state of a document between two
// parties, independent of regulatory submission.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusSent             Status = "sent"
	StatusReceived         Status = "received"
	StatusUnderDiscussion  Status = "under_discussion"
	StatusCorrectionNeeded Status = "correction_needed"
	StatusApproved         Status = "approved"
	StatusReady            Status = "ready_for_submission"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
)

// ParseStatus converts a raw string into a defined Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	switch s {
	case StatusDraft, StatusSent, StatusReceived, StatusUnderDiscussion,
		StatusCorrectionNeeded, StatusApproved, StatusReady,
		StatusRejected, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("agreement: unknown status %q", raw)
}

// transitions is the fixed edge table. rejected and cancelled are reachable
// from any non-terminal state and are handled in CanTransition directly.
var transitions = map[Status][]Status{
	StatusDraft:            {StatusSent},
	StatusSent:             {StatusReceived},
	StatusReceived:         {StatusUnderDiscussion, StatusApproved},
	StatusUnderDiscussion:  {StatusCorrectionNeeded, StatusApproved},
	StatusCorrectionNeeded: {StatusSent},
	StatusApproved:         {StatusReady},
}

// IsTerminal reports whether no further agreement transition may leave s.
// Submission after ready_for_submission belongs to the external gateway.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusReady
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusRejected || to == StatusCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SubmissionStatus is whatever the external submission gateway last reported.
type SubmissionStatus string

const (
	SubmissionNone      SubmissionStatus = "none"
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionError     SubmissionStatus = "error"
)

// Valid reports whether s is a defined submission status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionNone, SubmissionPending, SubmissionSubmitted, SubmissionError:
		return true
	}
	return false
}

// PostingStatus is whatever the general ledger collaborator last reported.
type PostingStatus string

const (
	PostingUnposted    PostingStatus = "unposted"
	PostingPosted      PostingStatus = "posted"
	PostingNeedsReview PostingStatus = "needs_review"
)

// Valid reports whether p is a defined posting status.
func (p PostingStatus) Valid() bool {
	switch p {
	case PostingUnposted, PostingPosted, PostingNeedsReview:
		return true
	}
	return false
}

// Document is any entity with a lifecycle: invoice or contract. It carries
// only the current statuses; history lives in the audit log.
type Document struct {
	ID               uuid.UUID
	CompanyID        int64
	Kind             Kind
	Number           string
	CounterpartyName string
	Status           Status
	Submission       SubmissionStatus
	SubmissionRef    string
	Posting          PostingStatus
	PostingRef       string
	PostedAt         *time.Time
	NetAmount        decimal.Decimal
	TaxAmount        decimal.Decimal
	IssueDate        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InvalidTransitionError reports an illegal state edge. The request is
// rejected, never coerced onto a legal edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("agreement: invalid transition from %s to %s", e.From, e.To)
}

// ErrConcurrentModification indicates the document changed between read and
// write. The caller must re-read and retry.
var ErrConcurrentModification = errors.New("agreement: document modified concurrently")

// ErrDocumentNotFound indicates an unknown document id.
var ErrDocumentNotFound = errors.New("agreement: document not found")

// CreateDocumentInput captures validation rules for new documents.
type CreateDocumentInput struct {
	CompanyID        int64
	Kind             Kind
	Number           string
	CounterpartyName string
	NetAmount        decimal.Decimal
	TaxAmount        decimal.Decimal
	IssueDate        time.Time
	ActorID          string
}

// Validate ensures the create document input is coherent.
func (in CreateDocumentInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("agreement: company id required")
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("agreement: unknown document kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Number) == "" {
		return errors.New("agreement: document number required")
	}
	if in.IssueDate.IsZero() {
		return errors.New("agreement: issue date required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return errors.New("agreement: actor required")
	}
	if in.NetAmount.IsNegative() || in.TaxAmount.IsNegative() {
		return errors.New("agreement: amounts cannot be negative")
	}
	return nil
}

// TransitionInput bundles parameters for one agreement-status move.
type TransitionInput struct {
	DocumentID uuid.UUID
	To         Status
	ActorID    string
	Action     string
	Comment    string
}

// Validate checks required transition fields.
func (in TransitionInput) Validate() error {
	if in.DocumentID == uuid.Nil {
		return errors.New("agreement: document id required")
	}
	if _, err := ParseStatus(string(in.To)); err != nil {
		return err
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return errors.New("agreement: actor required")
	}
	return nil
}

// TransitionResult reports the applied status plus its audit trail entry.
type TransitionResult struct {
	NewStatus Status
	EventID   uuid.UUID
}

// TransitionRecord is one reconstructed step of a document's history.
type TransitionRecord struct {
	From       Status
	To         Status
	ActorID    string
	Action     string
	Comment    string
	EventID    uuid.UUID
	OccurredAt time.Time
}

var invoiceEventByStatus = map[Status]audit.EventType{
	StatusSent:             audit.EventInvoiceSent,
	StatusReceived:         audit.EventInvoiceReceived,
	StatusUnderDiscussion:  audit.EventInvoiceDiscussionStarted,
	StatusCorrectionNeeded: audit.EventInvoiceCorrectionRequested,
	StatusApproved:         audit.EventInvoiceApproved,
	StatusReady:            audit.EventInvoiceReady,
	StatusRejected:         audit.EventInvoiceRejected,
	StatusCancelled:        audit.EventInvoiceCancelled,
}

var contractEventByStatus = map[Status]audit.EventType{
	StatusSent:             audit.EventContractSent,
	StatusReceived:         audit.EventContractReceived,
	StatusUnderDiscussion:  audit.EventContractDiscussionStarted,
	StatusCorrectionNeeded: audit.EventContractCorrectionRequested,
	StatusApproved:         audit.EventContractApproved,
	StatusReady:            audit.EventContractReady,
	StatusRejected:         audit.EventContractRejected,
	StatusCancelled:        audit.EventContractCancelled,
}

// EventTypeForTransition derives the audit event type for an applied edge.
func EventTypeForTransition(kind Kind, to Status) (audit.EventType, error) {
	table := invoiceEventByStatus
	if kind == KindContract {
		table = contractEventByStatus
	}
	t, ok := table[to]
	if !ok {
		return "", fmt.Errorf("agreement: no event type for transition to %s", to)
	}
	return t, nil
}
