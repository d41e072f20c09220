package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/user"
)

const (
	intakeGroupColumns   = `id, name, campus_id, year, created_at, updated_at`
	accommodationColumns = `id, name, type, campus_id, created_at, updated_at`
)

type groupRepository struct {
	db core.DB
}

var _ user.GroupRepository = (*groupRepository)(nil)

func NewGroupRepository(db core.DB) *groupRepository {
	return &groupRepository{db: db}
}

func (repo groupRepository) GetIntakeGroupByID(ctx context.Context, id string) (user.IntakeGroup, error) {
	var grp user.IntakeGroup
	err := repo.db.QueryRowxContext(ctx,
		`SELECT `+intakeGroupColumns+` FROM intake_group WHERE id = $1`, id,
	).Scan(&grp.ID, &grp.Name, &grp.CampusID, &grp.Year, &grp.CreatedAt, &grp.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.IntakeGroup{}, user.ErrGroupNotFound
		}
		return user.IntakeGroup{}, errors.Wrap(err, "getting intake group")
	}
	return grp, nil
}

func (repo groupRepository) QueryIntakeGroups(ctx context.Context, campusID string) ([]user.IntakeGroup, error) {
	query := `SELECT ` + intakeGroupColumns + ` FROM intake_group`
	var args []interface{}
	if campusID != "" {
		query += ` WHERE campus_id = $1`
		args = append(args, campusID)
	}
	query += ` ORDER BY year DESC, name`

	rows, err := repo.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying intake groups")
	}
	defer func() { _ = rows.Close() }()

	var groups []user.IntakeGroup
	for rows.Next() {
		var grp user.IntakeGroup
		if err = rows.Scan(&grp.ID, &grp.Name, &grp.CampusID, &grp.Year, &grp.CreatedAt, &grp.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning intake group")
		}
		groups = append(groups, grp)
	}
	return groups, errors.Wrap(rows.Err(), "querying intake groups")
}

func (repo groupRepository) UpsertIntakeGroup(ctx context.Context, grp user.IntakeGroup) (user.IntakeGroup, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO intake_group (`+intakeGroupColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, campus_id = EXCLUDED.campus_id, year = EXCLUDED.year,
			updated_at = EXCLUDED.updated_at`,
		grp.ID, grp.Name, grp.CampusID, grp.Year, grp.CreatedAt, grp.UpdatedAt,
	)
	if err != nil {
		return user.IntakeGroup{}, errors.Wrap(err, "upserting intake group")
	}
	return grp, nil
}

func (repo groupRepository) GetAccommodationByID(ctx context.Context, id string) (user.Accommodation, error) {
	var acc user.Accommodation
	err := repo.db.QueryRowxContext(ctx,
		`SELECT `+accommodationColumns+` FROM accommodation WHERE id = $1`, id,
	).Scan(&acc.ID, &acc.Name, &acc.Type, &acc.CampusID, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.Accommodation{}, user.ErrAccommodationNotFound
		}
		return user.Accommodation{}, errors.Wrap(err, "getting accommodation")
	}
	return acc, nil
}

func (repo groupRepository) QueryAccommodations(ctx context.Context, campusID string) ([]user.Accommodation, error) {
	query := `SELECT ` + accommodationColumns + ` FROM accommodation`
	var args []interface{}
	if campusID != "" {
		query += ` WHERE campus_id = $1`
		args = append(args, campusID)
	}
	query += ` ORDER BY name`

	rows, err := repo.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying accommodations")
	}
	defer func() { _ = rows.Close() }()

	var accs []user.Accommodation
	for rows.Next() {
		var acc user.Accommodation
		if err = rows.Scan(&acc.ID, &acc.Name, &acc.Type, &acc.CampusID, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning accommodation")
		}
		accs = append(accs, acc)
	}
	return accs, errors.Wrap(rows.Err(), "querying accommodations")
}

func (repo groupRepository) UpsertAccommodation(ctx context.Context, acc user.Accommodation) (user.Accommodation, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO accommodation (`+accommodationColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, campus_id = EXCLUDED.campus_id,
			updated_at = EXCLUDED.updated_at`,
		acc.ID, acc.Name, acc.Type, acc.CampusID, acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		return user.Accommodation{}, errors.Wrap(err, "upserting accommodation")
	}
	return acc, nil
}

func (repo groupRepository) DeleteAccommodationsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM accommodation WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting accommodations")
}
