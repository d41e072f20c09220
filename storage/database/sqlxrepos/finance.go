package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/finance"
)

type payableRow struct {
	ID          string    `db:"id"`
	StudentID   string    `db:"student_id"`
	Description string    `db:"description"`
	Amount      int64     `db:"amount"`
	DueDate     time.Time `db:"due_date"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row payableRow) toPayable() finance.Payable {
	return finance.Payable(row)
}

const (
	payableColumns = `id, student_id, description, amount, due_date, status, created_at, updated_at`
	paymentColumns = `id, payable_id, amount, method, recorded_by, paid_at`
)

type financeRepository struct {
	db core.DB
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db core.DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo financeRepository) CreatePayable(ctx context.Context, p finance.Payable) (finance.Payable, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO payable (`+payableColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.StudentID, p.Description, p.Amount, p.DueDate, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return finance.Payable{}, errors.Wrap(err, "creating payable")
	}
	return p, nil
}

func (repo financeRepository) GetPayableByID(ctx context.Context, id string) (finance.Payable, error) {
	var row payableRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+payableColumns+` FROM payable WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return finance.Payable{}, finance.ErrPayableNotFound
		}
		return finance.Payable{}, errors.Wrap(err, "getting payable")
	}
	return row.toPayable(), nil
}

func (repo financeRepository) QueryPayables(ctx context.Context, studentID string) ([]finance.Payable, error) {
	query := `SELECT ` + payableColumns + ` FROM payable`
	var args []interface{}
	if studentID != "" {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` ORDER BY due_date`

	var rows []payableRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying payables")
	}
	payables := make([]finance.Payable, 0, len(rows))
	for _, row := range rows {
		payables = append(payables, row.toPayable())
	}
	return payables, nil
}

func (repo financeRepository) DeletePayablesByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM payable WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting payables")
}

// RecordPayment inserts the payment and rolls the payable's status forward in
// one transaction, so a crash can never leave money recorded against a stale
// status.
func (repo financeRepository) RecordPayment(ctx context.Context, pmt finance.Payment) (finance.Payable, error) {
	var p finance.Payable
	err := core.Atomic(ctx, repo.db, func(tx core.DBExecutor) error {
		var row payableRow
		err := tx.GetContext(ctx, &row,
			`SELECT `+payableColumns+` FROM payable WHERE id = $1 FOR UPDATE`, pmt.PayableID)
		if err != nil {
			if err == sql.ErrNoRows {
				return finance.ErrPayableNotFound
			}
			return errors.Wrap(err, "locking payable")
		}
		p = row.toPayable()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			pmt.ID, pmt.PayableID, pmt.Amount, pmt.Method, pmt.RecordedBy, pmt.PaidAt,
		)
		if err != nil {
			return errors.Wrap(err, "creating payment")
		}

		var paid int64
		err = tx.GetContext(ctx, &paid,
			`SELECT COALESCE(SUM(amount), 0) FROM payment WHERE payable_id = $1`, pmt.PayableID)
		if err != nil {
			return errors.Wrap(err, "summing payments")
		}

		p.Status = p.StatusFor(paid)
		p.UpdatedAt = pmt.PaidAt
		_, err = tx.ExecContext(ctx,
			`UPDATE payable SET status = $2, updated_at = $3 WHERE id = $1`,
			p.ID, p.Status, p.UpdatedAt,
		)
		return errors.Wrap(err, "updating payable status")
	})
	if err != nil {
		return finance.Payable{}, err
	}
	return p, nil
}

func (repo financeRepository) QueryPayments(ctx context.Context, payableID string) ([]finance.Payment, error) {
	rows, err := repo.db.QueryxContext(ctx,
		`SELECT `+paymentColumns+` FROM payment WHERE payable_id = $1 ORDER BY paid_at`, payableID)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	defer func() { _ = rows.Close() }()

	var payments []finance.Payment
	for rows.Next() {
		var pmt finance.Payment
		if err = rows.Scan(&pmt.ID, &pmt.PayableID, &pmt.Amount, &pmt.Method, &pmt.RecordedBy, &pmt.PaidAt); err != nil {
			return nil, errors.Wrap(err, "scanning payment")
		}
		payments = append(payments, pmt)
	}
	return payments, errors.Wrap(rows.Err(), "querying payments")
}

func (repo financeRepository) PaidTotal(ctx context.Context, payableID string) (int64, error) {
	var total int64
	err := repo.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(amount), 0) FROM payment WHERE payable_id = $1`, payableID)
	return total, errors.Wrap(err, "summing payments")
}
