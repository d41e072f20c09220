package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/event"
)

type eventRow struct {
	ID        string         `db:"id"`
	Title     string         `db:"title"`
	Details   string         `db:"details"`
	Location  string         `db:"location"`
	StartsAt  time.Time      `db:"starts_at"`
	EndsAt    time.Time      `db:"ends_at"`
	AllDay    bool           `db:"all_day"`
	CampusIDs pq.StringArray `db:"campus_ids"`
	CreatedBy string         `db:"created_by"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row eventRow) toEvent() event.Event {
	return event.Event{
		ID:        row.ID,
		Title:     row.Title,
		Details:   row.Details,
		Location:  row.Location,
		StartsAt:  row.StartsAt,
		EndsAt:    row.EndsAt,
		AllDay:    row.AllDay,
		CampusIDs: row.CampusIDs,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

const eventColumns = `id, title, details, location, starts_at, ends_at, all_day, campus_ids, created_by, created_at, updated_at`

type eventRepository struct {
	db core.DB
}

var _ event.Repository = (*eventRepository)(nil)

func NewEventRepository(db core.DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo eventRepository) CreateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO event (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		evt.ID, evt.Title, evt.Details, evt.Location, evt.StartsAt, evt.EndsAt, evt.AllDay,
		pq.StringArray(evt.CampusIDs), evt.CreatedBy, evt.CreatedAt, evt.UpdatedAt,
	)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "creating event")
	}
	return evt, nil
}

func (repo eventRepository) GetEventByID(ctx context.Context, id string) (event.Event, error) {
	var row eventRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM event WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, errors.Wrap(err, "getting event")
	}
	return row.toEvent(), nil
}

func (repo eventRepository) FilterEvents(ctx context.Context, filter *event.Filter, ordering ...core.DBOrdering) ([]event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM event`
	var conds []string
	var args []interface{}

	if filter != nil {
		if !filter.From.IsZero() {
			args = append(args, filter.From)
			conds = append(conds, `ends_at >= `+placeholder(len(args)))
		}
		if !filter.To.IsZero() {
			args = append(args, filter.To)
			conds = append(conds, `starts_at <= `+placeholder(len(args)))
		}
		if filter.CampusID != "" {
			args = append(args, pq.Array([]string{filter.CampusID}))
			conds = append(conds, `campus_ids @> `+placeholder(len(args)))
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += orderByClause(ordering, "starts_at")

	var rows []eventRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEvent())
	}
	return events, nil
}

func (repo eventRepository) UpdateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE event SET title = $2, details = $3, location = $4, starts_at = $5, ends_at = $6,
			all_day = $7, campus_ids = $8, updated_at = $9 WHERE id = $1`,
		evt.ID, evt.Title, evt.Details, evt.Location, evt.StartsAt, evt.EndsAt, evt.AllDay,
		pq.StringArray(evt.CampusIDs), evt.UpdatedAt,
	)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "updating event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return evt, nil
}

func (repo eventRepository) DeleteEventsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM event WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting events")
}
