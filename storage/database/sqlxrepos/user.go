// Package sqlxrepos implements the domain repositories on PostgreSQL via sqlx.
// Each repository maps rows through a private row struct so the domain models
// stay free of storage tags.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/user"
)

type userRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Username       string         `db:"username"`
	Email          string         `db:"email"`
	IsActive       bool           `db:"is_active"`
	InactiveReason string         `db:"inactive_reason"`
	Roles          pq.StringArray `db:"roles"`
	PasswordHash   []byte         `db:"password_hash"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	LastLogin      sql.NullTime   `db:"last_login"`
}

func (row userRow) toUser() user.User {
	usr := user.User{
		ID:             row.ID,
		Name:           row.Name,
		Username:       row.Username,
		Email:          row.Email,
		InactiveReason: row.InactiveReason,
		Roles:          row.Roles,
		PasswordHash:   row.PasswordHash,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	usr.IsActive = &row.IsActive
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time
	}
	return usr
}

func newUserRow(usr user.User) userRow {
	row := userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       usr.Username,
		Email:          usr.Email,
		IsActive:       usr.Active(),
		InactiveReason: usr.InactiveReason,
		Roles:          usr.Roles,
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt,
		UpdatedAt:      usr.UpdatedAt,
	}
	if !usr.LastLogin.IsZero() {
		row.LastLogin = sql.NullTime{Time: usr.LastLogin, Valid: true}
	}
	return row
}

const userColumns = `id, name, username, email, is_active, inactive_reason, roles, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM "user" WHERE (lower(username) = lower($1) OR lower(email) = lower($2))`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		query += ` AND id != ALL($3)`
		args = append(args, pq.Array(ids))
	}

	rows, err := repo.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var uname, mail string
		if err = rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "checking username uniqueness")
		}
		if strings.EqualFold(uname, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(mail, email) {
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(rows.Err(), "checking username uniqueness")
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := newUserRow(usr)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO "user" (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.InactiveReason,
		row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo userRepository) getUser(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE `+where, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `id = $1`, id)
}

func (repo userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `lower(username) = lower($1)`, username)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `lower(email) = lower($1)`, email)
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `lower(username) = lower($1) OR lower(email) = lower($1)`, username)
}

func (repo userRepository) FilterUsers(ctx context.Context, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user"`
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			p := placeholder(len(args))
			conds = append(conds, `(name ILIKE `+p+` OR username ILIKE `+p+` OR email ILIKE `+p+`)`)
		}
		if len(filter.Roles) > 0 {
			args = append(args, pq.Array(filter.Roles))
			conds = append(conds, `roles && `+placeholder(len(args)))
		}
		if filter.IsActive != nil {
			args = append(args, *filter.IsActive)
			conds = append(conds, `is_active = `+placeholder(len(args)))
		}
		if !filter.CreatedFrom.IsZero() {
			args = append(args, filter.CreatedFrom)
			conds = append(conds, `created_at >= `+placeholder(len(args)))
		}
		if !filter.CreatedTo.IsZero() {
			args = append(args, filter.CreatedTo)
			conds = append(conds, `created_at <= `+placeholder(len(args)))
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += orderByClause(ordering, "created_at DESC")

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	if isActive != nil {
		usr.IsActive = isActive
	}
	row := newUserRow(usr)
	res, err := repo.db.ExecContext(ctx,
		`UPDATE "user" SET name = $2, username = $3, email = $4, is_active = $5, inactive_reason = $6,
			roles = $7, password_hash = $8, updated_at = $9 WHERE id = $1`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.InactiveReason,
		row.Roles, row.PasswordHash, row.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := newUserRow(usr)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO "user" (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (username) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, is_active = EXCLUDED.is_active,
			inactive_reason = EXCLUDED.inactive_reason, roles = EXCLUDED.roles,
			password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.InactiveReason,
		row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "upserting user")
	}
	return repo.GetUserByUsername(ctx, usr.Username)
}

func (repo userRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	usr.LastLogin = time.Now().UTC()
	_, err := repo.db.ExecContext(ctx, `UPDATE "user" SET last_login = $2 WHERE id = $1`, usr.ID, usr.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
