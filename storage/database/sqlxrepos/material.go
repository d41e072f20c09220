package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/material"
)

type materialRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	ObjectKey      string         `db:"object_key"`
	ContentType    string         `db:"content_type"`
	Size           int64          `db:"size"`
	IntakeGroupIDs pq.StringArray `db:"intake_group_ids"`
	UploadedBy     string         `db:"uploaded_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (row materialRow) toMaterial() material.Material {
	return material.Material{
		ID:             row.ID,
		Title:          row.Title,
		Description:    row.Description,
		ObjectKey:      row.ObjectKey,
		ContentType:    row.ContentType,
		Size:           row.Size,
		IntakeGroupIDs: row.IntakeGroupIDs,
		UploadedBy:     row.UploadedBy,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

const materialColumns = `id, title, description, object_key, content_type, size, intake_group_ids, uploaded_by, created_at, updated_at`

type materialRepository struct {
	db core.DB
}

var _ material.Repository = (*materialRepository)(nil)

func NewMaterialRepository(db core.DB) *materialRepository {
	return &materialRepository{db: db}
}

func (repo materialRepository) CreateMaterial(ctx context.Context, m material.Material) (material.Material, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO material (`+materialColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Title, m.Description, m.ObjectKey, m.ContentType, m.Size,
		pq.StringArray(m.IntakeGroupIDs), m.UploadedBy, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return material.Material{}, errors.Wrap(err, "creating material")
	}
	return m, nil
}

func (repo materialRepository) GetMaterialByID(ctx context.Context, id string) (material.Material, error) {
	var row materialRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+materialColumns+` FROM material WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return material.Material{}, material.ErrNotFound
		}
		return material.Material{}, errors.Wrap(err, "getting material")
	}
	return row.toMaterial(), nil
}

func (repo materialRepository) QueryMaterials(ctx context.Context, intakeGroupID string) ([]material.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM material`
	var args []interface{}
	if intakeGroupID != "" {
		query += ` WHERE intake_group_ids @> $1`
		args = append(args, pq.Array([]string{intakeGroupID}))
	}
	query += ` ORDER BY created_at DESC`

	var rows []materialRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	materials := make([]material.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.toMaterial())
	}
	return materials, nil
}

func (repo materialRepository) UpdateMaterial(ctx context.Context, m material.Material) (material.Material, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE material SET title = $2, description = $3, intake_group_ids = $4, updated_at = $5 WHERE id = $1`,
		m.ID, m.Title, m.Description, pq.StringArray(m.IntakeGroupIDs), m.UpdatedAt,
	)
	if err != nil {
		return material.Material{}, errors.Wrap(err, "updating material")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return material.Material{}, material.ErrNotFound
	}
	return m, nil
}

func (repo materialRepository) DeleteMaterialsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM material WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting materials")
}
