package user

import (
	"context"
	"errors"
	"time"

	"github.com/elimuhq/elimu/core"
)

var (
	ErrGroupNotFound         = errors.New("Intake group not found")
	ErrAccommodationNotFound = errors.New("Accommodation not found")
)

// IntakeGroup is a cohort of students admitted together on a campus.
type IntakeGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CampusID  string    `json:"campus_id"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Accommodation is a residence option students can be placed in.
type Accommodation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CampusID  string    `json:"campus_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type UpsertIntakeGroup struct {
	Name     string `json:"name" validate:"required"`
	CampusID string `json:"campus_id" validate:"required"`
	Year     int    `json:"year" validate:"required,gte=2000"`
}

func (ug *UpsertIntakeGroup) Validate() error {
	ug.Name = core.CleanString(ug.Name)
	return core.Validate.Struct(ug)
}

type UpsertAccommodation struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	CampusID string `json:"campus_id" validate:"required"`
}

func (ua *UpsertAccommodation) Validate() error {
	ua.Name = core.CleanString(ua.Name)
	ua.Type = core.CleanString(ua.Type, true)
	return core.Validate.Struct(ua)
}

// GroupRepository persists the thin cohort/residence entities that hang off
// the user domain.
type GroupRepository interface {
	GetIntakeGroupByID(ctx context.Context, id string) (IntakeGroup, error)
	QueryIntakeGroups(ctx context.Context, campusID string) ([]IntakeGroup, error)
	UpsertIntakeGroup(ctx context.Context, grp IntakeGroup) (IntakeGroup, error)

	GetAccommodationByID(ctx context.Context, id string) (Accommodation, error)
	QueryAccommodations(ctx context.Context, campusID string) ([]Accommodation, error)
	UpsertAccommodation(ctx context.Context, acc Accommodation) (Accommodation, error)
	DeleteAccommodationsByID(ctx context.Context, ids ...string) error
}

type GroupService interface {
	GetIntakeGroup(ctx context.Context, id string) (IntakeGroup, error)
	IntakeGroups(ctx context.Context, campusID string) ([]IntakeGroup, error)
	SaveIntakeGroup(ctx context.Context, id string, ug UpsertIntakeGroup) (IntakeGroup, error)

	GetAccommodation(ctx context.Context, id string) (Accommodation, error)
	Accommodations(ctx context.Context, campusID string) ([]Accommodation, error)
	SaveAccommodation(ctx context.Context, id string, ua UpsertAccommodation) (Accommodation, error)
	DeleteAccommodations(ctx context.Context, ids ...string) error
}

type groupService struct {
	repo GroupRepository
}

var _ GroupService = (*groupService)(nil)

func NewGroupService(repo GroupRepository) *groupService {
	return &groupService{repo: repo}
}

func (svc *groupService) GetIntakeGroup(ctx context.Context, id string) (IntakeGroup, error) {
	return svc.repo.GetIntakeGroupByID(ctx, id)
}

func (svc *groupService) IntakeGroups(ctx context.Context, campusID string) ([]IntakeGroup, error) {
	return svc.repo.QueryIntakeGroups(ctx, campusID)
}

func (svc *groupService) SaveIntakeGroup(ctx context.Context, id string, ug UpsertIntakeGroup) (IntakeGroup, error) {
	now := nowFunc().UTC()
	grp := IntakeGroup{ID: id, Name: ug.Name, CampusID: ug.CampusID, Year: ug.Year, UpdatedAt: now}
	if curr, err := svc.repo.GetIntakeGroupByID(ctx, id); err == nil {
		grp.CreatedAt = curr.CreatedAt
	} else {
		grp.CreatedAt = now
	}
	return svc.repo.UpsertIntakeGroup(ctx, grp)
}

func (svc *groupService) GetAccommodation(ctx context.Context, id string) (Accommodation, error) {
	return svc.repo.GetAccommodationByID(ctx, id)
}

func (svc *groupService) Accommodations(ctx context.Context, campusID string) ([]Accommodation, error) {
	return svc.repo.QueryAccommodations(ctx, campusID)
}

func (svc *groupService) SaveAccommodation(ctx context.Context, id string, ua UpsertAccommodation) (Accommodation, error) {
	now := nowFunc().UTC()
	acc := Accommodation{ID: id, Name: ua.Name, Type: ua.Type, CampusID: ua.CampusID, UpdatedAt: now}
	if curr, err := svc.repo.GetAccommodationByID(ctx, id); err == nil {
		acc.CreatedAt = curr.CreatedAt
	} else {
		acc.CreatedAt = now
	}
	return svc.repo.UpsertAccommodation(ctx, acc)
}

func (svc *groupService) DeleteAccommodations(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteAccommodationsByID(ctx, ids...)
}
