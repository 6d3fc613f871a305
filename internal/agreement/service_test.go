package agreement

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

type memoryDocumentRepo struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*Document
	events    []audit.Event
	clockStep time.Duration
	lastStamp time.Time

	// readBarrier, when set, forces concurrent readers to rendezvous before
	// either writer proceeds.
	readBarrier *sync.WaitGroup
}

func newMemoryDocumentRepo() *memoryDocumentRepo {
	return &memoryDocumentRepo{docs: make(map[uuid.UUID]*Document), clockStep: time.Millisecond}
}

func (r *memoryDocumentRepo) stamp(ev audit.Event) audit.Event {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	r.lastStamp = r.lastStamp.Add(r.clockStep)
	ev.OccurredAt = r.lastStamp
	return ev
}

func (r *memoryDocumentRepo) InsertDocument(ctx context.Context, id uuid.UUID, in CreateDocumentInput, ev audit.Event) (Document, audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := Document{
		ID:         id,
		CompanyID:  in.CompanyID,
		Kind:       in.Kind,
		Number:     in.Number,
		Status:     StatusDraft,
		Submission: SubmissionNone,
		Posting:    PostingUnposted,
		NetAmount:  in.NetAmount,
		TaxAmount:  in.TaxAmount,
		IssueDate:  in.IssueDate,
	}
	r.docs[id] = &doc
	ev = r.stamp(ev)
	r.events = append(r.events, ev)
	return doc, ev, nil
}

func (r *memoryDocumentRepo) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	r.mu.Lock()
	doc, ok := r.docs[id]
	var copied Document
	if ok {
		copied = *doc
	}
	r.mu.Unlock()
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	if r.readBarrier != nil {
		r.readBarrier.Done()
		r.readBarrier.Wait()
	}
	return copied, nil
}

func (r *memoryDocumentRepo) ApplyTransition(ctx context.Context, id uuid.UUID, from, to Status, ev audit.Event) (audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return audit.Event{}, ErrDocumentNotFound
	}
	if doc.Status != from {
		return audit.Event{}, ErrConcurrentModification
	}
	doc.Status = to
	ev = r.stamp(ev)
	r.events = append(r.events, ev)
	return ev, nil
}

func (r *memoryDocumentRepo) UpdateSubmission(ctx context.Context, id uuid.UUID, status SubmissionStatus, reference string, ev audit.Event) (audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return audit.Event{}, ErrDocumentNotFound
	}
	doc.Submission = status
	doc.SubmissionRef = reference
	ev = r.stamp(ev)
	r.events = append(r.events, ev)
	return ev, nil
}

func (r *memoryDocumentRepo) UpdatePosting(ctx context.Context, id uuid.UUID, status PostingStatus, reference string, postedAt *time.Time, ev audit.Event) (audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return audit.Event{}, ErrDocumentNotFound
	}
	doc.Posting = status
	doc.PostingRef = reference
	doc.PostedAt = postedAt
	ev = r.stamp(ev)
	r.events = append(r.events, ev)
	return ev, nil
}

// Query implements AuditReader on top of the fake's event slice.
func (r *memoryDocumentRepo) Query(ctx context.Context, f audit.Filters) ([]audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, ev := range r.events {
		if ev.CompanyID != f.CompanyID {
			continue
		}
		if f.Entity != "" && ev.Entity != f.Entity {
			continue
		}
		if f.EntityID != "" && ev.EntityID != f.EntityID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func createTestDocument(t *testing.T, svc *Service, kind Kind) Document {
	t.Helper()
	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		CompanyID: 1,
		Kind:      kind,
		Number:    "INV-2025-001",
		NetAmount: decimal.NewFromInt(1000),
		TaxAmount: decimal.NewFromInt(120),
		IssueDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ActorID:   "u-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)
	return doc
}

func TestTransitionHappyPath(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)
	doc := createTestDocument(t, svc, KindInvoice)

	res, err := svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID, To: StatusSent, ActorID: "u-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusSent, res.NewStatus)
	require.NotEqual(t, uuid.Nil, res.EventID)

	// Event carried the edge in its payload.
	last := repo.events[len(repo.events)-1]
	require.Equal(t, audit.EventInvoiceSent, last.Type)
	require.Equal(t, "draft", last.Payload["previous_status"])
	require.Equal(t, "sent", last.Payload["new_status"])
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)
	doc := createTestDocument(t, svc, KindInvoice)

	_, err := svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID, To: StatusSent, ActorID: "u-1",
	})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), TransitionInput{
		DocumentID: doc.ID, To: StatusApproved, ActorID: "u-1",
	})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, StatusSent, invalid.From)
	require.Equal(t, StatusApproved, invalid.To)

	// No event appended for the rejected request.
	events, err := repo.Query(context.Background(), audit.Filters{CompanyID: 1, Entity: audit.EntityDocument, EntityID: doc.ID.String()})
	require.NoError(t, err)
	require.Len(t, events, 2) // created + sent
}

func TestTransitionFromTerminalFails(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)
	doc := createTestDocument(t, svc, KindContract)

	_, err := svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, To: StatusCancelled, ActorID: "u-1"})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, To: StatusSent, ActorID: "u-1"})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestTransitionUnknownDocument(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)

	_, err := svc.Transition(context.Background(), TransitionInput{DocumentID: uuid.New(), To: StatusSent, ActorID: "u-1"})
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestConcurrentTransitionsOneWinner(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)
	doc := createTestDocument(t, svc, KindInvoice)

	var barrier sync.WaitGroup
	barrier.Add(2)
	repo.readBarrier = &barrier

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Transition(context.Background(), TransitionInput{
				DocumentID: doc.ID, To: StatusSent, ActorID: "u-1",
			})
			results <- err
		}()
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
}

func TestHistoryReconstructsValidWalk(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)
	doc := createTestDocument(t, svc, KindInvoice)

	steps := []Status{StatusSent, StatusReceived, StatusUnderDiscussion, StatusCorrectionNeeded, StatusSent, StatusReceived, StatusApproved, StatusReady}
	for _, to := range steps {
		_, err := svc.Transition(context.Background(), TransitionInput{DocumentID: doc.ID, To: to, ActorID: "u-1"})
		require.NoError(t, err)
	}

	history, err := svc.History(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, history, len(steps))

	current := StatusDraft
	for _, rec := range history {
		require.Equal(t, current, rec.From)
		require.True(t, CanTransition(rec.From, rec.To), "history contains invalid edge %s -> %s", rec.From, rec.To)
		current = rec.To
	}
	require.Equal(t, StatusReady, current)
}

func TestRecordSubmissionAndPosting(t *testing.T) {
	repo := newMemoryDocumentRepo()
	svc := NewService(repo, repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC) })
	doc := createTestDocument(t, svc, KindInvoice)

	updated, err := svc.RecordSubmissionStatus(context.Background(), RecordSubmissionInput{
		DocumentID: doc.ID, Status: SubmissionSubmitted, Reference: "EINV-42", ActorID: "gateway",
	})
	require.NoError(t, err)
	require.Equal(t, SubmissionSubmitted, updated.Submission)
	require.Equal(t, "EINV-42", updated.SubmissionRef)

	updated, err = svc.RecordPostingStatus(context.Background(), RecordPostingInput{
		DocumentID: doc.ID, Status: PostingPosted, Reference: "JRN-7", ActorID: "gl",
	})
	require.NoError(t, err)
	require.Equal(t, PostingPosted, updated.Posting)
	require.NotNil(t, updated.PostedAt)

	_, err = svc.RecordSubmissionStatus(context.Background(), RecordSubmissionInput{
		DocumentID: doc.ID, Status: SubmissionStatus("maybe"), ActorID: "gateway",
	})
	require.Error(t, err)
}
