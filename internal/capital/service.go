package capital

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/internal/audit"
)

// RepositoryPort defines data access for capital events. SetLink persists
// the link and the supplied audit event in one atomic unit; it fails with
// ErrConcurrentModification when the stored ref of that kind no longer
// matches previousRef (nil means the caller saw no link).
type RepositoryPort interface {
	Insert(ctx context.Context, id uuid.UUID, in CreateInput, ev audit.Event) (CapitalEvent, audit.Event, error)
	Get(ctx context.Context, id uuid.UUID) (CapitalEvent, error)
	SetLink(ctx context.Context, id uuid.UUID, kind LinkKind, previousRef *string, link Link, ev audit.Event) (CapitalEvent, audit.Event, error)
}

// Publisher fans out committed audit events to collaborators.
type Publisher interface {
	Publish(ev audit.Event)
}

// Service maintains triple-link completeness for capital events.
type Service struct {
	repo      RepositoryPort
	publisher Publisher
	now       func() time.Time
}

// NewService constructs a capital Service.
func NewService(repo RepositoryPort, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher, now: time.Now}
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

// Create registers a new capital event in draft with no links attached.
func (s *Service) Create(ctx context.Context, in CreateInput) (CapitalEvent, error) {
	if err := in.Validate(); err != nil {
		return CapitalEvent{}, err
	}
	id := uuid.New()
	ev := audit.Event{
		CompanyID: in.CompanyID,
		Type:      audit.EventCapitalEventCreated,
		ActorID:   in.ActorID,
		Entity:    audit.EntityCapitalEvent,
		EntityID:  id.String(),
		Payload: map[string]any{
			"kind":        string(in.Kind),
			"amount":      in.Amount.String(),
			"shareholder": in.ShareholderID,
		},
	}
	event, ev, err := s.repo.Insert(ctx, id, in, ev)
	if err != nil {
		return CapitalEvent{}, err
	}
	s.publish(ev)
	return event, nil
}

// Get returns a capital event by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (CapitalEvent, error) {
	if id == uuid.Nil {
		return CapitalEvent{}, errors.New("capital: event id required")
	}
	return s.repo.Get(ctx, id)
}

// AttachLink attaches or corrects one leg of the triple link and returns the
// recomputed completeness flags. Replacing an existing link without a
// correction note fails with LinkConflictError; with one, the replacement is
// logged as a correction carrying the prior reference.
func (s *Service) AttachLink(ctx context.Context, in AttachLinkInput) (Completeness, error) {
	if err := in.Validate(); err != nil {
		return Completeness{}, err
	}
	event, err := s.repo.Get(ctx, in.CapitalEventID)
	if err != nil {
		return Completeness{}, err
	}

	existing := event.LinkFor(in.Kind)
	var previousRef *string
	eventType := audit.EventCapitalLinkAttached
	payload := map[string]any{
		"link_kind": string(in.Kind),
		"ref":       in.Ref,
	}
	if existing != nil {
		ref := existing.Ref
		previousRef = &ref
		if in.CorrectionNote == "" {
			return Completeness{}, &LinkConflictError{Kind: in.Kind}
		}
		eventType = audit.EventCapitalLinkCorrected
		payload["previous_ref"] = existing.Ref
		payload["note"] = in.CorrectionNote
	}

	ev := audit.Event{
		CompanyID: event.CompanyID,
		Type:      eventType,
		ActorID:   in.ActorID,
		Entity:    audit.EntityCapitalEvent,
		EntityID:  event.ID.String(),
		Payload:   payload,
	}
	// Carry a typed traceability link when the reference is itself an id.
	if refID, err := uuid.Parse(in.Ref); err == nil {
		switch in.Kind {
		case LinkPayment:
			ev.PaymentID = &refID
		case LinkLedgerEntry:
			ev.LedgerEntryID = &refID
		}
	}

	link := Link{
		Ref:        in.Ref,
		Note:       in.CorrectionNote,
		AttachedBy: in.ActorID,
		AttachedAt: s.now().UTC(),
	}
	updated, ev, err := s.repo.SetLink(ctx, event.ID, in.Kind, previousRef, link, ev)
	if err != nil {
		return Completeness{}, err
	}
	s.publish(ev)
	return updated.Completeness(), nil
}

// IsComplete reports whether all three links are attached. Other systems use
// this as the filing gate; this core only reports, it never blocks.
func (s *Service) IsComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return event.Completeness().Complete(), nil
}
