package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core"
)

var nowFunc = time.Now // mockable

type (
	Repository interface {
		CreateEvent(ctx context.Context, evt Event) (Event, error)
		GetEventByID(ctx context.Context, id string) (Event, error)
		FilterEvents(ctx context.Context, filter *Filter, ordering ...core.DBOrdering) ([]Event, error)
		UpdateEvent(ctx context.Context, evt Event) (Event, error)
		DeleteEventsByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, ne NewEvent, createdBy string) (Event, error)
		GetByID(ctx context.Context, id string) (Event, error)
		Query(ctx context.Context, filter *Filter, ordering ...core.DBOrdering) ([]Event, error)
		Update(ctx context.Context, id string, ue UpdateEvent) (Event, error)
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ne NewEvent, createdBy string) (Event, error) {
	now := nowFunc().UTC()
	evt := Event{
		ID:        uuid.New().String(),
		Title:     ne.Title,
		Details:   ne.Details,
		Location:  ne.Location,
		StartsAt:  ne.StartsAt.UTC(),
		EndsAt:    ne.EndsAt.UTC(),
		AllDay:    ne.AllDay,
		CampusIDs: ne.CampusIDs,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateEvent(ctx, evt)
}

func (svc *service) GetByID(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEventByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *Filter, ordering ...core.DBOrdering) ([]Event, error) {
	return svc.repo.FilterEvents(ctx, filter, ordering...)
}

func (svc *service) Update(ctx context.Context, id string, ue UpdateEvent) (Event, error) {
	evt, err := svc.repo.GetEventByID(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if ue.Title != "" {
		evt.Title = ue.Title
	}
	if ue.Details != "" {
		evt.Details = ue.Details
	}
	if ue.Location != "" {
		evt.Location = ue.Location
	}
	if !ue.StartsAt.IsZero() {
		evt.StartsAt = ue.StartsAt.UTC()
	}
	if !ue.EndsAt.IsZero() {
		evt.EndsAt = ue.EndsAt.UTC()
	}
	if ue.AllDay != nil {
		evt.AllDay = *ue.AllDay
	}
	if ue.CampusIDs != nil {
		evt.CampusIDs = ue.CampusIDs
	}
	evt.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateEvent(ctx, evt)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteEventsByID(ctx, ids...)
}
