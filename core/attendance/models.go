package attendance

import (
	"errors"
	"time"

	"github.com/elimuhq/elimu/core"
)

var (
	// errors
	ErrSessionNotFound = errors.New("attendance session not found")
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrSessionExpired  = errors.New("attendance session expired")
	ErrInvalidToken    = errors.New("invalid attendance token")
	ErrAlreadyScanned  = errors.New("attendance already recorded")
)

const (
	StatusPresent = "present"
	StatusLate    = "late"

	// lateThreshold splits present from late, measured from session open.
	lateThreshold = 10 * time.Minute
)

// QRSession is a staff-opened attendance window. The QR code students scan
// encodes Token, which is HMAC-signed over the session identity and expiry.
type QRSession struct {
	ID            string    `json:"id"`
	CampusID      string    `json:"campus_id"`
	IntakeGroupID string    `json:"intake_group_id"`
	Token         string    `json:"token"`
	CreatedBy     string    `json:"created_by"`
	ExpiresAt     time.Time `json:"expires_at"` // UTC
	CreatedAt     time.Time `json:"created_at"` // UTC
}

func (qs QRSession) Expired() bool {
	return nowFunc().After(qs.ExpiresAt)
}

// Record is one student's scan against a QRSession. At most one per
// (session, student).
type Record struct {
	ID          string    `json:"id"`
	QRSessionID string    `json:"qr_session_id"`
	StudentID   string    `json:"student_id"`
	ScannedAt   time.Time `json:"scanned_at"` // UTC
	Status      string    `json:"status"`
}

type OpenSession struct {
	CampusID      string `json:"campus_id" validate:"required"`
	IntakeGroupID string `json:"intake_group_id" validate:"required"`
}

func (os *OpenSession) Validate() error {
	return core.Validate.Struct(os)
}
