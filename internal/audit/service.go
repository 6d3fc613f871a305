package audit

import (
	"context"
	"fmt"
)

// Querier is the read access the service needs.
type Querier interface {
	Query(ctx context.Context, f Filters) ([]Event, error)
}

// Result wraps a page of events with paging metadata.
type Result struct {
	Events []Event
	Paging PagingInfo
}

// PagingInfo carries simple page navigation state.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Service coordinates audit log reads.
type Service struct {
	repo Querier
}

// NewService constructs an audit read service.
func NewService(repo Querier) *Service {
	return &Service{repo: repo}
}

// Query returns all events matching filters in append order.
func (s *Service) Query(ctx context.Context, f Filters) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("audit: service not configured")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Query(ctx, f)
}

// Timeline returns one page of events plus paging metadata.
func (s *Service) Timeline(ctx context.Context, f Filters, page, pageSize int) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: service not configured")
	}
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	f.Limit = pageSize + 1
	f.Offset = (page - 1) * pageSize

	events, err := s.repo.Query(ctx, f)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(events) > pageSize
	if hasNext {
		events = events[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Events: events, Paging: paging}, nil
}
