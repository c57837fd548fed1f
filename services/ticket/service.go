package ticket

import (
	"context"

	"tickethub/pkg/db/option"
	"tickethub/pkg/errutil"
	"tickethub/pkg/repository"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	tickets repository.Repository[Ticket]
	events  repository.Repository[Event]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Tickets repository.Repository[Ticket]
	Events  repository.Repository[Event]
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		tickets: p.Tickets,
		events:  p.Events,
	}
}

var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"status":     true,
	"event_id":   true,
}

type ListParams struct {
	EventID    string
	OwnerID    string
	PurchaseID string
	Status     string
	Flagged    *bool
	Limit      int
	Offset     int
	SortBy     string
	OrderBy    string
}

type ListResult struct {
	Tickets []*Ticket `json:"tickets"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// List returns tickets matching the filter, newest first unless the caller
// asks otherwise.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if params.Limit <= 0 {
		params.Limit = defaultPageSize
	}
	if params.Limit > maxPageSize {
		params.Limit = maxPageSize
	}
	if params.Status != "" && params.Status != string(StatusValid) && params.Status != string(StatusRevoked) {
		return nil, errutil.ValidationFailed("status must be valid or revoked", nil)
	}

	query := &Ticket{
		EventID:    params.EventID,
		OwnerID:    params.OwnerID,
		PurchaseID: params.PurchaseID,
		Status:     Status(params.Status),
	}

	// filterOpts narrow the result set and apply to both the page query and
	// the total count; paging and ordering apply to the page query only.
	var filterOpts []option.QueryOption
	if params.Flagged != nil {
		filterOpts = append(filterOpts, option.ApplyOperator(option.Condition{
			Field:    "flagged",
			Operator: option.EQ,
			Value:    *params.Flagged,
		}))
	}

	pageOpts := append([]option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  params.SortBy,
			OrderBy: orDefault(params.OrderBy, "desc"),
			Allow:   sortableColumns,
		}),
		option.WithLimit(params.Limit),
		option.WithOffset(params.Offset),
	}, filterOpts...)

	total, err := s.tickets.Count(ctx, query, filterOpts...)
	if err != nil {
		return nil, errutil.Internal("failed to count tickets", err)
	}

	items, err := s.tickets.Find(ctx, query, pageOpts...)
	if err != nil {
		return nil, errutil.Internal("failed to list tickets", err)
	}

	return &ListResult{
		Tickets: items,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
	}, nil
}

// Get returns a single ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if id == "" {
		return nil, errutil.BadRequest("ticket id is required", nil)
	}

	t, err := s.tickets.FindOne(ctx, &Ticket{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load ticket", err)
	}
	if t == nil {
		return nil, errutil.NotFound("ticket not found", nil)
	}
	return t, nil
}

// GroupMembers returns the valid children of a group parent ticket.
func (s *Service) GroupMembers(ctx context.Context, parentID string) ([]*Ticket, error) {
	return s.tickets.Find(ctx, &Ticket{Status: StatusValid},
		option.ApplyOperator(option.Condition{
			Field:    "group_parent_id",
			Operator: option.EQ,
			Value:    parentID,
		}),
	)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
