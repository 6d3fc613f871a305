package agreement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/internal/audit"
)

// RepositoryPort defines data access for documents. Every mutating method
// persists its primary record and the supplied audit event in one atomic
// unit; the stamped event is returned.
type RepositoryPort interface {
	InsertDocument(ctx context.Context, id uuid.UUID, in CreateDocumentInput, ev audit.Event) (Document, audit.Event, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, from, to Status, ev audit.Event) (audit.Event, error)
	UpdateSubmission(ctx context.Context, id uuid.UUID, status SubmissionStatus, reference string, ev audit.Event) (audit.Event, error)
	UpdatePosting(ctx context.Context, id uuid.UUID, status PostingStatus, reference string, postedAt *time.Time, ev audit.Event) (audit.Event, error)
}

// AuditReader replays audit events for history reconstruction.
type AuditReader interface {
	Query(ctx context.Context, f audit.Filters) ([]audit.Event, error)
}

// Publisher fans out committed audit events to collaborators.
type Publisher interface {
	Publish(ev audit.Event)
}

// Service enforces the agreement state machine for documents.
type Service struct {
	repo      RepositoryPort
	events    AuditReader
	publisher Publisher
	now       func() time.Time
}

// NewService constructs an agreement Service.
func NewService(repo RepositoryPort, events AuditReader, publisher Publisher) *Service {
	return &Service{repo: repo, events: events, publisher: publisher, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) publish(ev audit.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

// CreateDocument registers a new document in draft.
func (s *Service) CreateDocument(ctx context.Context, in CreateDocumentInput) (Document, error) {
	if err := in.Validate(); err != nil {
		return Document{}, err
	}
	id := uuid.New()
	ev := audit.Event{
		CompanyID: in.CompanyID,
		Type:      audit.EventDocumentCreated,
		ActorID:   in.ActorID,
		Entity:    audit.EntityDocument,
		EntityID:  id.String(),
		Payload: map[string]any{
			"kind":   string(in.Kind),
			"number": in.Number,
		},
	}
	doc, ev, err := s.repo.InsertDocument(ctx, id, in, ev)
	if err != nil {
		return Document{}, err
	}
	s.publish(ev)
	return doc, nil
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	if id == uuid.Nil {
		return Document{}, errors.New("agreement: document id required")
	}
	return s.repo.GetDocument(ctx, id)
}

// Transition moves a document along one edge of the agreement table. The
// status update and its audit event are written atomically; a concurrent
// writer who read the same prior status loses with ErrConcurrentModification.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (TransitionResult, error) {
	if err := in.Validate(); err != nil {
		return TransitionResult{}, err
	}
	doc, err := s.repo.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return TransitionResult{}, err
	}
	if !CanTransition(doc.Status, in.To) {
		return TransitionResult{}, &InvalidTransitionError{From: doc.Status, To: in.To}
	}
	eventType, err := EventTypeForTransition(doc.Kind, in.To)
	if err != nil {
		return TransitionResult{}, err
	}
	payload := map[string]any{
		"previous_status": string(doc.Status),
		"new_status":      string(in.To),
	}
	if in.Action != "" {
		payload["action"] = in.Action
	}
	if in.Comment != "" {
		payload["comment"] = in.Comment
	}
	ev := audit.Event{
		CompanyID: doc.CompanyID,
		Type:      eventType,
		ActorID:   in.ActorID,
		Entity:    audit.EntityDocument,
		EntityID:  doc.ID.String(),
		Payload:   payload,
	}
	ev, err = s.repo.ApplyTransition(ctx, doc.ID, doc.Status, in.To, ev)
	if err != nil {
		return TransitionResult{}, err
	}
	s.publish(ev)
	return TransitionResult{NewStatus: in.To, EventID: ev.ID}, nil
}

// History reconstructs the full transition sequence from the audit trail.
func (s *Service) History(ctx context.Context, documentID uuid.UUID) ([]TransitionRecord, error) {
	if s.events == nil {
		return nil, errors.New("agreement: audit reader not configured")
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.Query(ctx, audit.Filters{
		CompanyID: doc.CompanyID,
		Entity:    audit.EntityDocument,
		EntityID:  doc.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	var records []TransitionRecord
	for _, ev := range events {
		prev, okPrev := ev.Payload["previous_status"].(string)
		next, okNext := ev.Payload["new_status"].(string)
		if !okPrev || !okNext {
			continue
		}
		rec := TransitionRecord{
			From:       Status(prev),
			To:         Status(next),
			ActorID:    ev.ActorID,
			EventID:    ev.ID,
			OccurredAt: ev.OccurredAt,
		}
		if action, ok := ev.Payload["action"].(string); ok {
			rec.Action = action
		}
		if comment, ok := ev.Payload["comment"].(string); ok {
			rec.Comment = comment
		}
		records = append(records, rec)
	}
	return records, nil
}

// RecordSubmissionInput captures a status reported by the submission gateway.
type RecordSubmissionInput struct {
	DocumentID uuid.UUID
	Status     SubmissionStatus
	Reference  string
	Message    string
	ActorID    string
}

// RecordSubmissionStatus stores whatever the external gateway reported. The
// core never talks to the gateway itself.
func (s *Service) RecordSubmissionStatus(ctx context.Context, in RecordSubmissionInput) (Document, error) {
	if in.DocumentID == uuid.Nil {
		return Document{}, errors.New("agreement: document id required")
	}
	if !in.Status.Valid() {
		return Document{}, fmt.Errorf("agreement: unknown submission status %q", in.Status)
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return Document{}, errors.New("agreement: actor required")
	}
	doc, err := s.repo.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return Document{}, err
	}
	payload := map[string]any{
		"previous_submission": string(doc.Submission),
		"new_submission":      string(in.Status),
	}
	if in.Reference != "" {
		payload["reference"] = in.Reference
	}
	if in.Message != "" {
		payload["message"] = in.Message
	}
	ev := audit.Event{
		CompanyID: doc.CompanyID,
		Type:      audit.EventSubmissionStatusRecorded,
		ActorID:   in.ActorID,
		Entity:    audit.EntityDocument,
		EntityID:  doc.ID.String(),
		Payload:   payload,
	}
	ev, err = s.repo.UpdateSubmission(ctx, doc.ID, in.Status, in.Reference, ev)
	if err != nil {
		return Document{}, err
	}
	s.publish(ev)
	return s.repo.GetDocument(ctx, doc.ID)
}

// RecordPostingInput captures a status reported by the posting collaborator.
type RecordPostingInput struct {
	DocumentID uuid.UUID
	Status     PostingStatus
	Reference  string
	PostedAt   *time.Time
	ActorID    string
}

// RecordPostingStatus stores the general-ledger posting outcome.
func (s *Service) RecordPostingStatus(ctx context.Context, in RecordPostingInput) (Document, error) {
	if in.DocumentID == uuid.Nil {
		return Document{}, errors.New("agreement: document id required")
	}
	if !in.Status.Valid() {
		return Document{}, fmt.Errorf("agreement: unknown posting status %q", in.Status)
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return Document{}, errors.New("agreement: actor required")
	}
	doc, err := s.repo.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return Document{}, err
	}
	postedAt := in.PostedAt
	if in.Status == PostingPosted && postedAt == nil {
		now := s.now().UTC()
		postedAt = &now
	}
	payload := map[string]any{
		"previous_posting": string(doc.Posting),
		"new_posting":      string(in.Status),
	}
	if in.Reference != "" {
		payload["reference"] = in.Reference
	}
	ev := audit.Event{
		CompanyID: doc.CompanyID,
		Type:      audit.EventPostingStatusRecorded,
		ActorID:   in.ActorID,
		Entity:    audit.EntityDocument,
		EntityID:  doc.ID.String(),
		Payload:   payload,
	}
	ev, err = s.repo.UpdatePosting(ctx, doc.ID, in.Status, in.Reference, postedAt, ev)
	if err != nil {
		return Document{}, err
	}
	s.publish(ev)
	return s.repo.GetDocument(ctx, doc.ID)
}
