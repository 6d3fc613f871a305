package ledger

import (
	"context"
	"time"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/shared"
)

const closeLockTTL = 30 * time.Second

// RepositoryPort defines data access for accounting periods. ClosePeriod and
// ReopenPeriod each persist the period flip and the supplied audit event in
// one atomic unit. ClosePeriod also computes the aggregate inside that unit,
// under the period row lock, and fills the event payload with the snapshot it
// took there.
type RepositoryPort interface {
	GetPeriod(ctx context.Context, companyID int64, year, month int) (Period, bool, error)
	AggregateLive(ctx context.Context, companyID int64, year, month int) (Totals, error)
	ClosePeriod(ctx context.Context, companyID int64, year, month int, actorID string, ev audit.Event) (Period, Totals, audit.Event, error)
	ReopenPeriod(ctx context.Context, companyID int64, year, month int, actorID string, ev audit.Event) (Period, audit.Event, error)
}

// SnapshotReader locates the snapshot event for a closed period.
type SnapshotReader interface {
	LatestByType(ctx context.Context, companyID int64, entity audit.EntityKind, entityID string, t audit.EventType) (audit.Event, bool, error)
}

// Mutex provides mutual exclusion for the close critical section.
type Mutex interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Publisher fans out committed audit events to collaborators.
type Publisher interface {
	Publish(ev audit.Event)
}

// Service computes, freezes, and serves period-level totals.
type Service struct {
	repo      RepositoryPort
	snapshots SnapshotReader
	locker    Mutex
	publisher Publisher
	now       func() time.Time
}

// NewService constructs a ledger Service.
func NewService(repo RepositoryPort, snapshots SnapshotReader, locker Mutex, publisher Publisher) *Service {
	return &Service{repo: repo, snapshots: snapshots, locker: locker, publisher: publisher, now: time.Now}
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

// GetTotals returns period figures. Closed periods are served from the most
// recent snapshot event; open (or not yet materialised) periods aggregate
// live records. Callers see the difference only via the Source tag.
func (s *Service) GetTotals(ctx context.Context, companyID int64, year, month int) (Totals, error) {
	if err := ValidateKey(companyID, year, month); err != nil {
		return Totals{}, err
	}
	period, found, err := s.repo.GetPeriod(ctx, companyID, year, month)
	if err != nil {
		return Totals{}, err
	}
	if !found || period.Status == PeriodStatusOpen {
		return s.repo.AggregateLive(ctx, companyID, year, month)
	}

	ev, ok, err := s.snapshots.LatestByType(ctx, companyID, audit.EntityPeriod, Key(companyID, year, month), audit.EventPeriodClosed)
	if err != nil {
		return Totals{}, err
	}
	if !ok {
		return Totals{}, &MissingSnapshotError{CompanyID: companyID, Year: year, Month: month}
	}
	totals, err := TotalsFromPayload(ev.Payload)
	if err != nil {
		return Totals{}, &MissingSnapshotError{CompanyID: companyID, Year: year, Month: month}
	}
	return totals, nil
}

// ClosePeriod freezes a period: the repository flips it to closed, computes
// the aggregate under the period row lock, and appends a period_closed event
// carrying that snapshot, all in one transaction. After it returns, GetTotals
// for this key answers from the snapshot forever (until an audited reopen).
func (s *Service) ClosePeriod(ctx context.Context, in PeriodInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}

	lockKey := shared.PeriodLockKey(in.CompanyID, in.Year, in.Month)
	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, lockKey, closeLockTTL)
		if err != nil {
			return CloseResult{}, err
		}
		if !ok {
			return CloseResult{}, ErrClosePeriodInProgress
		}
		defer func() { _ = s.locker.Release(ctx, lockKey) }()
	}

	period, found, err := s.repo.GetPeriod(ctx, in.CompanyID, in.Year, in.Month)
	if err != nil {
		return CloseResult{}, err
	}
	if found && period.Status == PeriodStatusClosed {
		return CloseResult{}, ErrPeriodAlreadyClosed
	}

	ev := audit.Event{
		CompanyID: in.CompanyID,
		Type:      audit.EventPeriodClosed,
		ActorID:   in.ActorID,
		Entity:    audit.EntityPeriod,
		EntityID:  Key(in.CompanyID, in.Year, in.Month),
	}
	closed, totals, ev, err := s.repo.ClosePeriod(ctx, in.CompanyID, in.Year, in.Month, in.ActorID, ev)
	if err != nil {
		return CloseResult{}, err
	}
	s.publish(ev)

	totals.Source = SourceSnapshot
	return CloseResult{Period: closed, Totals: totals, EventID: ev.ID}, nil
}

// ReopenInput extends PeriodInput with the elevation gate and a reason.
type ReopenInput struct {
	PeriodInput
	Elevated bool
	Reason   string
}

// ReopenPeriod flips a closed period back to open for corrections. The prior
// snapshot event stays in the log; a later close writes a new generation and
// readers always follow the latest period_closed event.
func (s *Service) ReopenPeriod(ctx context.Context, in ReopenInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	if !in.Elevated {
		return Period{}, ErrElevationRequired
	}
	period, found, err := s.repo.GetPeriod(ctx, in.CompanyID, in.Year, in.Month)
	if err != nil {
		return Period{}, err
	}
	if !found || period.Status != PeriodStatusClosed {
		return Period{}, ErrPeriodNotClosed
	}

	payload := map[string]any{
		"generation": period.Generation + 1,
	}
	if in.Reason != "" {
		payload["reason"] = in.Reason
	}
	ev := audit.Event{
		CompanyID: in.CompanyID,
		Type:      audit.EventPeriodReopened,
		ActorID:   in.ActorID,
		Entity:    audit.EntityPeriod,
		EntityID:  Key(in.CompanyID, in.Year, in.Month),
		Payload:   payload,
	}
	reopened, ev, err := s.repo.ReopenPeriod(ctx, in.CompanyID, in.Year, in.Month, in.ActorID, ev)
	if err != nil {
		return Period{}, err
	}
	s.publish(ev)
	return reopened, nil
}

// PeriodStatusFor reports the current status of a period key; absent periods
// are open by definition.
func (s *Service) PeriodStatusFor(ctx context.Context, companyID int64, year, month int) (PeriodStatus, error) {
	period, found, err := s.repo.GetPeriod(ctx, companyID, year, month)
	if err != nil {
		return "", err
	}
	if !found {
		return PeriodStatusOpen, nil
	}
	return period.Status, nil
}

// Period returns the stored period row for a key, if one exists. Periods with
// no row have never been closed.
func (s *Service) Period(ctx context.Context, companyID int64, year, month int) (Period, bool, error) {
	if err := ValidateKey(companyID, year, month); err != nil {
		return Period{}, false, err
	}
	return s.repo.GetPeriod(ctx, companyID, year, month)
}
