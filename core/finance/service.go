package finance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var nowFunc = time.Now // mockable

type (
	Repository interface {
		CreatePayable(ctx context.Context, p Payable) (Payable, error)
		GetPayableByID(ctx context.Context, id string) (Payable, error)
		QueryPayables(ctx context.Context, studentID string) ([]Payable, error)
		DeletePayablesByID(ctx context.Context, ids ...string) error

		// RecordPayment inserts the payment and rolls the payable's status
		// forward in a single transaction, returning the updated payable.
		RecordPayment(ctx context.Context, pmt Payment) (Payable, error)
		QueryPayments(ctx context.Context, payableID string) ([]Payment, error)
		// PaidTotal sums settled amounts against the payable.
		PaidTotal(ctx context.Context, payableID string) (int64, error)
	}

	Service interface {
		CreatePayable(ctx context.Context, np NewPayable) (Payable, error)
		GetPayable(ctx context.Context, id string) (Payable, error)
		Payables(ctx context.Context, studentID string) ([]Payable, error)
		DeletePayables(ctx context.Context, ids ...string) error

		RecordPayment(ctx context.Context, payableID string, np NewPayment, recordedBy string) (Payable, error)
		Payments(ctx context.Context, payableID string) ([]Payment, error)
		// Balance is the student's total outstanding amount, in cents.
		Balance(ctx context.Context, studentID string) (int64, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) CreatePayable(ctx context.Context, np NewPayable) (Payable, error) {
	now := nowFunc().UTC()
	p := Payable{
		ID:          uuid.New().String(),
		StudentID:   np.StudentID,
		Description: np.Description,
		Amount:      np.Amount,
		DueDate:     np.DueDate.UTC(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreatePayable(ctx, p)
}

func (svc *service) GetPayable(ctx context.Context, id string) (Payable, error) {
	return svc.repo.GetPayableByID(ctx, id)
}

func (svc *service) Payables(ctx context.Context, studentID string) ([]Payable, error) {
	return svc.repo.QueryPayables(ctx, studentID)
}

func (svc *service) DeletePayables(ctx context.Context, ids ...string) error {
	return svc.repo.DeletePayablesByID(ctx, ids...)
}

// RecordPayment settles part (or all) of a payable. A settled payable rejects
// further payments, and no single payment may exceed what is outstanding.
func (svc *service) RecordPayment(ctx context.Context, payableID string, np NewPayment, recordedBy string) (Payable, error) {
	p, err := svc.repo.GetPayableByID(ctx, payableID)
	if err != nil {
		return Payable{}, err
	}
	if p.Status == StatusPaid {
		return Payable{}, ErrAlreadyPaid
	}
	paid, err := svc.repo.PaidTotal(ctx, payableID)
	if err != nil {
		return Payable{}, err
	}
	if np.Amount > p.Outstanding(paid) {
		return Payable{}, ErrOverpayment
	}

	pmt := Payment{
		ID:         uuid.New().String(),
		PayableID:  payableID,
		Amount:     np.Amount,
		Method:     np.Method,
		RecordedBy: recordedBy,
		PaidAt:     nowFunc().UTC(),
	}
	return svc.repo.RecordPayment(ctx, pmt)
}

func (svc *service) Payments(ctx context.Context, payableID string) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, payableID)
}

func (svc *service) Balance(ctx context.Context, studentID string) (int64, error) {
	payables, err := svc.repo.QueryPayables(ctx, studentID)
	if err != nil {
		return 0, err
	}
	var balance int64
	for _, p := range payables {
		if p.Status == StatusPaid {
			continue
		}
		paid, err := svc.repo.PaidTotal(ctx, p.ID)
		if err != nil {
			return 0, err
		}
		balance += p.Outstanding(paid)
	}
	return balance, nil
}
