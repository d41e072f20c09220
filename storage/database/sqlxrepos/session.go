package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/session"
)

type sessionRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	UserType    string         `db:"user_type"`
	Roles       pq.StringArray `db:"roles"`
	Permissions pq.StringArray `db:"permissions"`
	ExpiresAt   time.Time      `db:"expires_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (row sessionRow) toSession() session.Session {
	return session.Session{
		ID:          row.ID,
		UserID:      row.UserID,
		UserType:    row.UserType,
		Roles:       row.Roles,
		Permissions: row.Permissions,
		ExpiresAt:   row.ExpiresAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

const sessionColumns = `id, user_id, user_type, roles, permissions, expires_at, created_at, updated_at`

type sessionRepository struct {
	db core.DB
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db core.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo sessionRepository) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO session (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.UserID, sess.UserType, pq.StringArray(sess.Roles), pq.StringArray(sess.Permissions),
		sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "creating session")
	}
	return sess, nil
}

func (repo sessionRepository) GetSessionByID(ctx context.Context, id string) (session.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM session WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return session.Session{}, session.ErrSessionNotFound
		}
		return session.Session{}, errors.Wrap(err, "getting session")
	}
	return row.toSession(), nil
}

func (repo sessionRepository) UpdateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE session SET roles = $2, permissions = $3, expires_at = $4, updated_at = $5 WHERE id = $1`,
		sess.ID, pq.StringArray(sess.Roles), pq.StringArray(sess.Permissions), sess.ExpiresAt, sess.UpdatedAt,
	)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "updating session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.Session{}, session.ErrSessionNotFound
	}
	return sess, nil
}

func (repo sessionRepository) DeleteSessionsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM session WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting sessions")
}

func (repo sessionRepository) DeleteExpiredSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM session WHERE expires_at < $1`, olderThan)
	if err != nil {
		return 0, errors.Wrap(err, "purging sessions")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "purging sessions")
}
