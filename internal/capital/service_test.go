package capital

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/audit"
)

type memoryCapitalRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*CapitalEvent
	trail  []audit.Event
	last   time.Time

	// readBarrier, when set, forces concurrent readers to rendezvous before
	// returning, so both observe the same pre-write state.
	readBarrier *sync.WaitGroup
}

func newMemoryCapitalRepo() *memoryCapitalRepo {
	return &memoryCapitalRepo{events: make(map[uuid.UUID]*CapitalEvent)}
}

func (r *memoryCapitalRepo) stamp(ev audit.Event) audit.Event {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	r.last = r.last.Add(time.Millisecond)
	ev.OccurredAt = r.last
	return ev
}

func (r *memoryCapitalRepo) Insert(ctx context.Context, id uuid.UUID, in CreateInput, ev audit.Event) (CapitalEvent, audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event := CapitalEvent{
		ID:            id,
		CompanyID:     in.CompanyID,
		Kind:          in.Kind,
		Amount:        in.Amount,
		ShareholderID: in.ShareholderID,
	}
	r.events[id] = &event
	ev = r.stamp(ev)
	r.trail = append(r.trail, ev)
	return event, ev, nil
}

func (r *memoryCapitalRepo) Get(ctx context.Context, id uuid.UUID) (CapitalEvent, error) {
	r.mu.Lock()
	event, ok := r.events[id]
	if !ok {
		r.mu.Unlock()
		return CapitalEvent{}, ErrCapitalEventNotFound
	}
	snapshot := *event
	r.mu.Unlock()
	if r.readBarrier != nil {
		r.readBarrier.Done()
		r.readBarrier.Wait()
	}
	return snapshot, nil
}

func (r *memoryCapitalRepo) SetLink(ctx context.Context, id uuid.UUID, kind LinkKind, previousRef *string, link Link, ev audit.Event) (CapitalEvent, audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return CapitalEvent{}, audit.Event{}, ErrCapitalEventNotFound
	}
	stored := event.LinkFor(kind)
	switch {
	case previousRef == nil && stored != nil:
		return CapitalEvent{}, audit.Event{}, ErrConcurrentModification
	case previousRef != nil && (stored == nil || stored.Ref != *previousRef):
		return CapitalEvent{}, audit.Event{}, ErrConcurrentModification
	}
	switch kind {
	case LinkDecision:
		event.Decision = &link
	case LinkPayment:
		event.Payment = &link
	case LinkLedgerEntry:
		event.LedgerEntry = &link
	}
	ev = r.stamp(ev)
	r.trail = append(r.trail, ev)
	return *event, ev, nil
}

func createCapitalEvent(t *testing.T, svc *Service) CapitalEvent {
	t.Helper()
	event, err := svc.Create(context.Background(), CreateInput{
		CompanyID:     1,
		Kind:          KindDividend,
		Amount:        decimal.NewFromInt(50000),
		ShareholderID: "sh-1",
		ActorID:       "u-1",
	})
	require.NoError(t, err)
	return event
}

func TestCompletenessDerivedFromLinks(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)
	event := createCapitalEvent(t, svc)

	complete, err := svc.IsComplete(context.Background(), event.ID)
	require.NoError(t, err)
	require.False(t, complete)

	attach := func(kind LinkKind, ref string) Completeness {
		flags, err := svc.AttachLink(context.Background(), AttachLinkInput{
			CapitalEventID: event.ID, Kind: kind, Ref: ref, ActorID: "u-1",
		})
		require.NoError(t, err)
		return flags
	}

	flags := attach(LinkDecision, "AGM-2025-04")
	require.True(t, flags.HasDecision)
	require.False(t, flags.Complete())

	flags = attach(LinkPayment, uuid.NewString())
	require.True(t, flags.HasPayment)
	require.False(t, flags.Complete())

	flags = attach(LinkLedgerEntry, uuid.NewString())
	require.True(t, flags.HasLedgerEntry)
	require.True(t, flags.Complete())

	complete, err = svc.IsComplete(context.Background(), event.ID)
	require.NoError(t, err)
	require.True(t, complete)
}

func TestReattachWithoutNoteConflicts(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)
	event := createCapitalEvent(t, svc)

	_, err := svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: event.ID, Kind: LinkDecision, Ref: "AGM-2025-04", ActorID: "u-1",
	})
	require.NoError(t, err)

	_, err = svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: event.ID, Kind: LinkDecision, Ref: "AGM-2025-05", ActorID: "u-1",
	})
	var conflict *LinkConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, LinkDecision, conflict.Kind)

	// Prior link untouched.
	got, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, "AGM-2025-04", got.Decision.Ref)
}

func TestReattachWithNoteLogsCorrection(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)
	event := createCapitalEvent(t, svc)

	_, err := svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: event.ID, Kind: LinkDecision, Ref: "AGM-2025-04", ActorID: "u-1",
	})
	require.NoError(t, err)

	flags, err := svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: event.ID, Kind: LinkDecision, Ref: "AGM-2025-05", ActorID: "u-1",
		CorrectionNote: "wrong meeting referenced",
	})
	require.NoError(t, err)
	require.True(t, flags.HasDecision)

	got, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, "AGM-2025-05", got.Decision.Ref)

	last := repo.trail[len(repo.trail)-1]
	require.Equal(t, audit.EventCapitalLinkCorrected, last.Type)
	require.Equal(t, "AGM-2025-04", last.Payload["previous_ref"])
	require.Equal(t, "AGM-2025-05", last.Payload["ref"])
}

func TestConcurrentAttachesOneWinner(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)
	event := createCapitalEvent(t, svc)

	var barrier sync.WaitGroup
	barrier.Add(2)
	repo.readBarrier = &barrier

	refs := []string{"AGM-2025-04", "AGM-2025-05"}
	results := make(chan error, 2)
	for _, ref := range refs {
		go func(ref string) {
			_, err := svc.AttachLink(context.Background(), AttachLinkInput{
				CapitalEventID: event.ID, Kind: LinkDecision, Ref: ref, ActorID: "u-1",
			})
			results <- err
		}(ref)
	}

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, ErrConcurrentModification)
			conflicts++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)

	// The winner's reference survives and the trail records exactly one
	// attach, no corrections.
	repo.readBarrier = nil
	got, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Decision)
	require.Contains(t, refs, got.Decision.Ref)

	var attaches, corrections int
	for _, ev := range repo.trail {
		switch ev.Type {
		case audit.EventCapitalLinkAttached:
			attaches++
		case audit.EventCapitalLinkCorrected:
			corrections++
		}
	}
	require.Equal(t, 1, attaches)
	require.Equal(t, 0, corrections)
}

func TestAttachPaymentCarriesTypedLink(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)
	event := createCapitalEvent(t, svc)

	paymentID := uuid.New()
	_, err := svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: event.ID, Kind: LinkPayment, Ref: paymentID.String(), ActorID: "u-1",
	})
	require.NoError(t, err)

	last := repo.trail[len(repo.trail)-1]
	require.Equal(t, audit.EventCapitalLinkAttached, last.Type)
	require.NotNil(t, last.PaymentID)
	require.Equal(t, paymentID, *last.PaymentID)
}

func TestAttachValidation(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)

	_, err := svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: uuid.New(), Kind: LinkKind("invoice"), Ref: "x", ActorID: "u-1",
	})
	require.Error(t, err)

	_, err = svc.AttachLink(context.Background(), AttachLinkInput{
		CapitalEventID: uuid.New(), Kind: LinkDecision, Ref: "x", ActorID: "u-1",
	})
	require.ErrorIs(t, err, ErrCapitalEventNotFound)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryCapitalRepo()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		CompanyID: 1, Kind: KindDividend, Amount: decimal.Zero, ShareholderID: "sh-1", ActorID: "u-1",
	})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		CompanyID: 1, Kind: EventKind("loan"), Amount: decimal.NewFromInt(10), ShareholderID: "sh-1", ActorID: "u-1",
	})
	require.Error(t, err)
}
