package event

import (
	"context"
	"testing"
	"time"

	"github.com/elimuhq/elimu/core"
)

type memRepo struct {
	events map[string]Event
}

var _ Repository = (*memRepo)(nil)

func (repo *memRepo) CreateEvent(_ context.Context, evt Event) (Event, error) {
	repo.events[evt.ID] = evt
	return evt, nil
}

func (repo *memRepo) GetEventByID(_ context.Context, id string) (Event, error) {
	evt, ok := repo.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return evt, nil
}

func (repo *memRepo) FilterEvents(_ context.Context, filter *Filter, _ ...core.DBOrdering) ([]Event, error) {
	var out []Event
	for _, evt := range repo.events {
		if filter != nil {
			if !filter.From.IsZero() && evt.EndsAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && evt.StartsAt.After(filter.To) {
				continue
			}
		}
		out = append(out, evt)
	}
	return out, nil
}

func (repo *memRepo) UpdateEvent(_ context.Context, evt Event) (Event, error) {
	if _, ok := repo.events[evt.ID]; !ok {
		return Event{}, ErrNotFound
	}
	repo.events[evt.ID] = evt
	return evt, nil
}

func (repo *memRepo) DeleteEventsByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.events, id)
	}
	return nil
}

func TestNewEventValidate(t *testing.T) {
	starts := time.Now().UTC()
	tests := []struct {
		name    string
		ne      NewEvent
		wantErr bool
	}{
		{name: "valid", ne: NewEvent{Title: "Open Day", StartsAt: starts, EndsAt: starts.Add(time.Hour)}},
		{name: "missing title", ne: NewEvent{StartsAt: starts, EndsAt: starts.Add(time.Hour)}, wantErr: true},
		{name: "ends before starts", ne: NewEvent{Title: "Open Day", StartsAt: starts, EndsAt: starts.Add(-time.Hour)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ne.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateMergesPartialFields(t *testing.T) {
	repo := &memRepo{events: make(map[string]Event)}
	svc := NewService(repo)
	ctx := context.Background()

	starts := time.Now().UTC()
	evt, err := svc.Create(ctx, NewEvent{
		Title:    "Graduation",
		Location: "Main hall",
		StartsAt: starts,
		EndsAt:   starts.Add(2 * time.Hour),
	}, "staff-1")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	allDay := true
	updated, err := svc.Update(ctx, evt.ID, UpdateEvent{Title: "Graduation 2026", AllDay: &allDay})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Title != "Graduation 2026" {
		t.Errorf("Title = %q; want updated title", updated.Title)
	}
	if !updated.AllDay {
		t.Error("AllDay pointer field was not applied")
	}
	if updated.Location != "Main hall" {
		t.Errorf("Location = %q; untouched fields must survive", updated.Location)
	}

	if _, err = svc.Update(ctx, "missing", UpdateEvent{Title: "x"}); err != ErrNotFound {
		t.Errorf("Update() error = %v; want %v", err, ErrNotFound)
	}
}
