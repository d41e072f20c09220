package finance

import (
	"errors"
	"time"

	"github.com/elimuhq/elimu/core"
)

var (
	// errors
	ErrPayableNotFound = errors.New("Payable not found")
	ErrAlreadyPaid     = errors.New("payable already settled")
	ErrOverpayment     = errors.New("payment exceeds outstanding amount")
)

const (
	StatusPending = "pending"
	StatusPartial = "partial"
	StatusPaid    = "paid"

	MethodCash = "cash"
	MethodCard = "card"
	MethodEFT  = "eft"
)

// Payable is an amount owed by a student. Amounts are in cents.
type Payable struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	DueDate     time.Time `json:"due_date"` // UTC
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// StatusFor derives the payable's status from the total paid against it.
func (p Payable) StatusFor(paidTotal int64) string {
	switch {
	case paidTotal >= p.Amount:
		return StatusPaid
	case paidTotal > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// Outstanding returns what is still owed given the total paid.
func (p Payable) Outstanding(paidTotal int64) int64 {
	if rem := p.Amount - paidTotal; rem > 0 {
		return rem
	}
	return 0
}

// Payment is one settlement against a Payable. Amount is in cents.
type Payment struct {
	ID         string    `json:"id"`
	PayableID  string    `json:"payable_id"`
	Amount     int64     `json:"amount"`
	Method     string    `json:"method"`
	RecordedBy string    `json:"recorded_by"`
	PaidAt     time.Time `json:"paid_at"` // UTC
}

type NewPayable struct {
	StudentID   string    `json:"student_id" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

func (np *NewPayable) Validate() error {
	np.Description = core.CleanString(np.Description)
	return core.Validate.Struct(np)
}

type NewPayment struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"required,oneof=cash card eft"`
}

func (np *NewPayment) Validate() error {
	np.Method = core.CleanString(np.Method, true)
	return core.Validate.Struct(np)
}
