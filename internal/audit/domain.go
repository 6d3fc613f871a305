package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies one entry in the closed audit taxonomy. Types outside
// the taxonomy are rejected at append time.
type EventType string

const (
	EventDocumentCreated            EventType = "document_created"
	EventInvoiceSent                EventType = "invoice_sent"
	EventInvoiceReceived            EventType = "invoice_received"
	EventInvoiceDiscussionStarted   EventType = "invoice_discussion_started"
	EventInvoiceCorrectionRequested EventType = "invoice_correction_requested"
	EventInvoiceApproved            EventType = "invoice_approved"
	EventInvoiceReady               EventType = "invoice_ready_for_submission"
	EventInvoiceRejected            EventType = "invoice_rejected"
	EventInvoiceCancelled           EventType = "invoice_cancelled"

	EventContractSent                EventType = "contract_sent"
	EventContractReceived            EventType = "contract_received"
	EventContractDiscussionStarted   EventType = "contract_discussion_started"
	EventContractCorrectionRequested EventType = "contract_correction_requested"
	EventContractApproved            EventType = "contract_approved"
	EventContractReady               EventType = "contract_ready_for_submission"
	EventContractRejected            EventType = "contract_rejected"
	EventContractCancelled           EventType = "contract_cancelled"

	EventSubmissionStatusRecorded EventType = "submission_status_recorded"
	EventPostingStatusRecorded    EventType = "posting_status_recorded"
	EventPaymentReconciled        EventType = "payment_reconciled"

	EventPeriodClosed   EventType = "period_closed"
	EventPeriodReopened EventType = "period_reopened"

	EventCapitalEventCreated  EventType = "capital_event_created"
	EventCapitalLinkAttached  EventType = "capital_link_attached"
	EventCapitalLinkCorrected EventType = "capital_link_corrected"
)

var knownEventTypes = map[EventType]struct{}{
	EventDocumentCreated:             {},
	EventInvoiceSent:                 {},
	EventInvoiceReceived:             {},
	EventInvoiceDiscussionStarted:    {},
	EventInvoiceCorrectionRequested:  {},
	EventInvoiceApproved:             {},
	EventInvoiceReady:                {},
	EventInvoiceRejected:             {},
	EventInvoiceCancelled:            {},
	EventContractSent:                {},
	EventContractReceived:            {},
	EventContractDiscussionStarted:   {},
	EventContractCorrectionRequested: {},
	EventContractApproved:            {},
	EventContractReady:               {},
	EventContractRejected:            {},
	EventContractCancelled:           {},
	EventSubmissionStatusRecorded:    {},
	EventPostingStatusRecorded:       {},
	EventPaymentReconciled:           {},
	EventPeriodClosed:                {},
	EventPeriodReopened:              {},
	EventCapitalEventCreated:         {},
	EventCapitalLinkAttached:         {},
	EventCapitalLinkCorrected:        {},
}

// Known reports whether t belongs to the closed taxonomy.
func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// EntityKind names the record an event concerns. Events reference entities by
// kind + id only, so the log carries no compile-time edge to other modules.
type EntityKind string

const (
	EntityDocument     EntityKind = "document"
	EntityCapitalEvent EntityKind = "capital_event"
	EntityPeriod       EntityKind = "accounting_period"
)

// Event is one immutable audit record. Once appended it is never updated or
// deleted.
type Event struct {
	ID            uuid.UUID
	CompanyID     int64
	Type          EventType
	ActorID       string
	OccurredAt    time.Time
	Entity        EntityKind
	EntityID      string
	CorrelationID uuid.UUID
	Payload       map[string]any

	// Optional traceability links.
	PaymentID     *uuid.UUID
	LedgerEntryID *uuid.UUID
	InvoiceID     *uuid.UUID
}

// ErrUnknownEventType indicates an event type outside the closed taxonomy.
var ErrUnknownEventType = errors.New("audit: unknown event type")

// Validate enforces required fields before an event may be appended.
func (e Event) Validate() error {
	if !e.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if e.CompanyID == 0 {
		return errors.New("audit: company id required")
	}
	if e.ActorID == "" {
		return errors.New("audit: actor id required")
	}
	if e.Entity == "" || e.EntityID == "" {
		return errors.New("audit: entity kind and id required")
	}
	return nil
}

// Filters narrows a Query. CompanyID is mandatory; everything else optional.
type Filters struct {
	CompanyID     int64
	From          time.Time
	To            time.Time
	Types         []EventType
	Entity        EntityKind
	EntityID      string
	ActorID       string
	CorrelationID uuid.UUID
	Limit         int
	Offset        int
}

// Validate checks mandatory filter fields.
func (f Filters) Validate() error {
	if f.CompanyID == 0 {
		return errors.New("audit: company id filter required")
	}
	return nil
}
