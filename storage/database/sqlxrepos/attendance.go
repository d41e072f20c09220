package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/attendance"
)

const (
	qrSessionColumns = `id, campus_id, intake_group_id, token, created_by, expires_at, created_at`
	recordColumns    = `id, qr_session_id, student_id, scanned_at, status`
)

type attendanceRepository struct {
	db core.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db core.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo attendanceRepository) CreateQRSession(ctx context.Context, qs attendance.QRSession) (attendance.QRSession, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO attendance_qr_session (`+qrSessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		qs.ID, qs.CampusID, qs.IntakeGroupID, qs.Token, qs.CreatedBy, qs.ExpiresAt, qs.CreatedAt,
	)
	if err != nil {
		return attendance.QRSession{}, errors.Wrap(err, "creating QR session")
	}
	return qs, nil
}

func (repo attendanceRepository) GetQRSessionByID(ctx context.Context, id string) (attendance.QRSession, error) {
	var qs attendance.QRSession
	err := repo.db.QueryRowxContext(ctx,
		`SELECT `+qrSessionColumns+` FROM attendance_qr_session WHERE id = $1`, id,
	).Scan(&qs.ID, &qs.CampusID, &qs.IntakeGroupID, &qs.Token, &qs.CreatedBy, &qs.ExpiresAt, &qs.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return attendance.QRSession{}, attendance.ErrSessionNotFound
		}
		return attendance.QRSession{}, errors.Wrap(err, "getting QR session")
	}
	return qs, nil
}

func (repo attendanceRepository) QueryQRSessions(ctx context.Context, campusID string) ([]attendance.QRSession, error) {
	query := `SELECT ` + qrSessionColumns + ` FROM attendance_qr_session`
	var args []interface{}
	if campusID != "" {
		query += ` WHERE campus_id = $1`
		args = append(args, campusID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := repo.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying QR sessions")
	}
	defer func() { _ = rows.Close() }()

	var sessions []attendance.QRSession
	for rows.Next() {
		var qs attendance.QRSession
		if err = rows.Scan(&qs.ID, &qs.CampusID, &qs.IntakeGroupID, &qs.Token, &qs.CreatedBy, &qs.ExpiresAt, &qs.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning QR session")
		}
		sessions = append(sessions, qs)
	}
	return sessions, errors.Wrap(rows.Err(), "querying QR sessions")
}

func (repo attendanceRepository) DeleteQRSessionsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM attendance_qr_session WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting QR sessions")
}

func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO attendance_record (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.QRSessionID, rec.StudentID, rec.ScannedAt, rec.Status,
	)
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return attendance.Record{}, attendance.ErrAlreadyScanned
		}
		return attendance.Record{}, errors.Wrap(err, "creating attendance record")
	}
	return rec, nil
}

func (repo attendanceRepository) GetRecord(ctx context.Context, qrSessionID, studentID string) (attendance.Record, error) {
	var rec attendance.Record
	err := repo.db.QueryRowxContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_record WHERE qr_session_id = $1 AND student_id = $2`,
		qrSessionID, studentID,
	).Scan(&rec.ID, &rec.QRSessionID, &rec.StudentID, &rec.ScannedAt, &rec.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrRecordNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "getting attendance record")
	}
	return rec, nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, qrSessionID string) ([]attendance.Record, error) {
	rows, err := repo.db.QueryxContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_record WHERE qr_session_id = $1 ORDER BY scanned_at`, qrSessionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	defer func() { _ = rows.Close() }()

	var records []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		if err = rows.Scan(&rec.ID, &rec.QRSessionID, &rec.StudentID, &rec.ScannedAt, &rec.Status); err != nil {
			return nil, errors.Wrap(err, "scanning attendance record")
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "querying attendance records")
}
