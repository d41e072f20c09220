package event

import (
	"errors"
	"time"

	"github.com/elimuhq/elimu/core"
)

var ErrNotFound = errors.New("Event not found")

// Event is a calendar entry scoped to one or more campuses.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Details   string    `json:"details,omitempty"`
	Location  string    `json:"location,omitempty"`
	StartsAt  time.Time `json:"starts_at"` // UTC
	EndsAt    time.Time `json:"ends_at"`   // UTC
	AllDay    bool      `json:"all_day"`
	CampusIDs []string  `json:"campus_ids,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type NewEvent struct {
	Title     string    `json:"title" validate:"required"`
	Details   string    `json:"details"`
	Location  string    `json:"location"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	EndsAt    time.Time `json:"ends_at" validate:"required,gtefield=StartsAt"`
	AllDay    bool      `json:"all_day"`
	CampusIDs []string  `json:"campus_ids"`
}

func (ne *NewEvent) Validate() error {
	ne.Title = core.CleanString(ne.Title)
	return core.Validate.Struct(ne)
}

type UpdateEvent struct {
	Title     string    `json:"title"`
	Details   string    `json:"details"`
	Location  string    `json:"location"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	AllDay    *bool     `json:"all_day"`
	CampusIDs []string  `json:"campus_ids"`
}

func (ue *UpdateEvent) Validate() error {
	ue.Title = core.CleanString(ue.Title)
	if !ue.StartsAt.IsZero() && !ue.EndsAt.IsZero() && ue.EndsAt.Before(ue.StartsAt) {
		return core.NewValidationError(errors.New("ends_at must not precede starts_at"))
	}
	return core.Validate.Struct(ue)
}

// Filter narrows the calendar listing; zero values are ignored.
type Filter struct {
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
	CampusID string    `query:"campus"`
}
