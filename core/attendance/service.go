package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

type (
	Repository interface {
		CreateQRSession(ctx context.Context, qs QRSession) (QRSession, error)
		GetQRSessionByID(ctx context.Context, id string) (QRSession, error)
		QueryQRSessions(ctx context.Context, campusID string) ([]QRSession, error)
		DeleteQRSessionsByID(ctx context.Context, ids ...string) error

		CreateRecord(ctx context.Context, rec Record) (Record, error)
		// GetRecord returns the student's scan for the session, or ErrRecordNotFound.
		GetRecord(ctx context.Context, qrSessionID, studentID string) (Record, error)
		QueryRecords(ctx context.Context, qrSessionID string) ([]Record, error)
	}

	Service interface {
		Open(ctx context.Context, os OpenSession, createdBy string) (QRSession, error)
		GetByID(ctx context.Context, id string) (QRSession, error)
		Query(ctx context.Context, campusID string) ([]QRSession, error)
		Close(ctx context.Context, ids ...string) error
		// QRCodePNG renders the session token as a scannable PNG.
		QRCodePNG(qs QRSession) ([]byte, error)
		Scan(ctx context.Context, token, studentID string) (Record, error)
		Records(ctx context.Context, qrSessionID string) ([]Record, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) Open(ctx context.Context, os OpenSession, createdBy string) (QRSession, error) {
	now := nowFunc().UTC()
	qs := QRSession{
		ID:            uuid.New().String(),
		CampusID:      os.CampusID,
		IntakeGroupID: os.IntakeGroupID,
		CreatedBy:     createdBy,
		ExpiresAt:     now.Add(sessionDelta),
		CreatedAt:     now,
	}
	qs.Token = makeToken(qs.ID, qs.ExpiresAt)
	return svc.repo.CreateQRSession(ctx, qs)
}

func (svc *service) GetByID(ctx context.Context, id string) (QRSession, error) {
	return svc.repo.GetQRSessionByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, campusID string) ([]QRSession, error) {
	return svc.repo.QueryQRSessions(ctx, campusID)
}

func (svc *service) Close(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteQRSessionsByID(ctx, ids...)
}

func (svc *service) QRCodePNG(qs QRSession) ([]byte, error) {
	png, err := qrcode.Encode(qs.Token, qrcode.Medium, 256)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encoding QR code")
	}
	return png, nil
}

// Scan validates a scanned token and records the student's attendance. A scan
// after lateThreshold (from session open) lands as late rather than present.
func (svc *service) Scan(ctx context.Context, token, studentID string) (Record, error) {
	sessionID, err := verifyToken(token)
	if err != nil {
		return Record{}, err
	}
	qs, err := svc.repo.GetQRSessionByID(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if qs.Expired() {
		return Record{}, ErrSessionExpired
	}

	if _, err = svc.repo.GetRecord(ctx, qs.ID, studentID); err == nil {
		return Record{}, ErrAlreadyScanned
	} else if pkgerrors.Cause(err) != ErrRecordNotFound {
		return Record{}, pkgerrors.Wrap(err, "finding attendance record")
	}

	now := nowFunc().UTC()
	rec := Record{
		ID:          uuid.New().String(),
		QRSessionID: qs.ID,
		StudentID:   studentID,
		ScannedAt:   now,
		Status:      scanStatus(qs.CreatedAt, now),
	}
	return svc.repo.CreateRecord(ctx, rec)
}

func (svc *service) Records(ctx context.Context, qrSessionID string) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, qrSessionID)
}

func scanStatus(openedAt, scannedAt time.Time) string {
	if scannedAt.Sub(openedAt) > lateThreshold {
		return StatusLate
	}
	return StatusPresent
}
