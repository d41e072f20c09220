package attendance

import (
	"bytes"
	"context"
	"testing"
	"time"
)

type memRepo struct {
	sessions map[string]QRSession
	records  map[string]Record
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: make(map[string]QRSession),
		records:  make(map[string]Record),
	}
}

func (repo *memRepo) CreateQRSession(_ context.Context, qs QRSession) (QRSession, error) {
	repo.sessions[qs.ID] = qs
	return qs, nil
}

func (repo *memRepo) GetQRSessionByID(_ context.Context, id string) (QRSession, error) {
	qs, ok := repo.sessions[id]
	if !ok {
		return QRSession{}, ErrSessionNotFound
	}
	return qs, nil
}

func (repo *memRepo) QueryQRSessions(_ context.Context, campusID string) ([]QRSession, error) {
	var out []QRSession
	for _, qs := range repo.sessions {
		if campusID == "" || qs.CampusID == campusID {
			out = append(out, qs)
		}
	}
	return out, nil
}

func (repo *memRepo) DeleteQRSessionsByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.sessions, id)
	}
	return nil
}

func (repo *memRepo) CreateRecord(_ context.Context, rec Record) (Record, error) {
	repo.records[rec.QRSessionID+"/"+rec.StudentID] = rec
	return rec, nil
}

func (repo *memRepo) GetRecord(_ context.Context, qrSessionID, studentID string) (Record, error) {
	rec, ok := repo.records[qrSessionID+"/"+studentID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (repo *memRepo) QueryRecords(_ context.Context, qrSessionID string) ([]Record, error) {
	var out []Record
	for _, rec := range repo.records {
		if rec.QRSessionID == qrSessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestScan(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	secretKey = []byte("test-secret")
	sessionDelta = time.Hour
	defer func() { nowFunc = time.Now }()
	nowFunc = time.Now

	qs, err := svc.Open(ctx, OpenSession{CampusID: "cpt", IntakeGroupID: "grp-1"}, "staff-1")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if qs.Token == "" {
		t.Fatal("Open() returned an empty token")
	}

	t.Run("valid scan is present", func(t *testing.T) {
		rec, err := svc.Scan(ctx, qs.Token, "student-1")
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		if rec.Status != StatusPresent {
			t.Errorf("Status = %q; want %q", rec.Status, StatusPresent)
		}
	})

	t.Run("duplicate scan", func(t *testing.T) {
		if _, err := svc.Scan(ctx, qs.Token, "student-1"); err != ErrAlreadyScanned {
			t.Errorf("Scan() error = %v; want %v", err, ErrAlreadyScanned)
		}
	})

	t.Run("late scan", func(t *testing.T) {
		nowFunc = func() time.Time { return qs.CreatedAt.Add(lateThreshold + time.Minute) }
		rec, err := svc.Scan(ctx, qs.Token, "student-2")
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		if rec.Status != StatusLate {
			t.Errorf("Status = %q; want %q", rec.Status, StatusLate)
		}
	})

	t.Run("expired session", func(t *testing.T) {
		nowFunc = func() time.Time { return qs.ExpiresAt.Add(time.Minute) }
		if _, err := svc.Scan(ctx, qs.Token, "student-3"); err != ErrSessionExpired {
			t.Errorf("Scan() error = %v; want %v", err, ErrSessionExpired)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		nowFunc = time.Now
		if _, err := svc.Scan(ctx, qs.Token+"x", "student-3"); err != ErrInvalidToken {
			t.Errorf("Scan() error = %v; want %v", err, ErrInvalidToken)
		}
	})

	t.Run("deleted session", func(t *testing.T) {
		nowFunc = time.Now
		if err := svc.Close(ctx, qs.ID); err != nil {
			t.Fatalf("Close() failed: %v", err)
		}
		if _, err := svc.Scan(ctx, qs.Token, "student-3"); err != ErrSessionNotFound {
			t.Errorf("Scan() error = %v; want %v", err, ErrSessionNotFound)
		}
	})
}

func TestQRCodePNG(t *testing.T) {
	svc := NewService(newMemRepo())
	secretKey = []byte("test-secret")

	qs := QRSession{ID: "qs-1", Token: makeToken("qs-1", time.Now().Add(time.Hour))}
	png, err := svc.QRCodePNG(qs)
	if err != nil {
		t.Fatalf("QRCodePNG() failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("QRCodePNG() did not produce a PNG (got %d bytes)", len(png))
	}
}
