package audit

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryAuditRepo struct {
	events []Event
}

func (r *memoryAuditRepo) Query(ctx context.Context, f Filters) ([]Event, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []Event
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
		if f.ActorID != "" && ev.ActorID != f.ActorID {
			continue
		}
		if !f.From.IsZero() && ev.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && ev.OccurredAt.After(f.To) {
			continue
		}
		if len(f.Types) > 0 {
			match := false
			for _, t := range f.Types {
				if ev.Type == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = nil
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func seedEvents(n int, companyID int64) []Event {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event{
			ID:         uuid.New(),
			CompanyID:  companyID,
			Type:       EventInvoiceSent,
			ActorID:    "u-1",
			Entity:     EntityDocument,
			EntityID:   "doc-1",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return events
}

func TestQueryRequiresCompany(t *testing.T) {
	svc := NewService(&memoryAuditRepo{})
	_, err := svc.Query(context.Background(), Filters{})
	require.Error(t, err)
}

func TestQueryIsStableAcrossCalls(t *testing.T) {
	repo := &memoryAuditRepo{events: seedEvents(5, 1)}
	svc := NewService(repo)
	f := Filters{CompanyID: 1, Entity: EntityDocument, EntityID: "doc-1"}

	first, err := svc.Query(context.Background(), f)
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), f)
	require.NoError(t, err)

	require.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		require.False(t, first[i].OccurredAt.Before(first[i-1].OccurredAt))
	}
}

func TestTimelinePaging(t *testing.T) {
	repo := &memoryAuditRepo{events: seedEvents(25, 1)}
	svc := NewService(repo)

	page1, err := svc.Timeline(context.Background(), Filters{CompanyID: 1}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page1.Events, 10)
	require.True(t, page1.Paging.HasNext)
	require.Equal(t, 2, page1.Paging.NextPage)

	page3, err := svc.Timeline(context.Background(), Filters{CompanyID: 1}, 3, 10)
	require.NoError(t, err)
	require.Len(t, page3.Events, 5)
	require.False(t, page3.Paging.HasNext)
	require.Equal(t, 2, page3.Paging.PrevPage)
}

func TestEventValidateRejectsUnknownType(t *testing.T) {
	ev := Event{
		CompanyID: 1,
		Type:      EventType("made_up"),
		ActorID:   "u-1",
		Entity:    EntityDocument,
		EntityID:  "doc-1",
	}
	require.ErrorIs(t, ev.Validate(), ErrUnknownEventType)
}

func TestLogStampMonotonic(t *testing.T) {
	log := NewLog()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	log.WithNow(func() time.Time { return fixed })

	first := log.Stamp(Event{})
	second := log.Stamp(Event{})
	require.True(t, second.OccurredAt.After(first.OccurredAt))
	require.NotEqual(t, first.ID, second.ID)
}
