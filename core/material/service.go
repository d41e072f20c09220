package material

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

var nowFunc = time.Now // mockable

type (
	// URLSigner issues pre-signed object URLs; satisfied by services/storage.
	URLSigner interface {
		SignedURL(method, key string) (string, time.Time, error)
	}

	Repository interface {
		CreateMaterial(ctx context.Context, m Material) (Material, error)
		GetMaterialByID(ctx context.Context, id string) (Material, error)
		QueryMaterials(ctx context.Context, intakeGroupID string) ([]Material, error)
		UpdateMaterial(ctx context.Context, m Material) (Material, error)
		DeleteMaterialsByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		// RequestUpload reserves an object key and signs a one-shot PUT URL.
		RequestUpload(ctx context.Context, ur UploadRequest) (UploadTicket, error)
		Create(ctx context.Context, nm NewMaterial, uploadedBy string) (Material, error)
		GetByID(ctx context.Context, id string) (Material, error)
		Query(ctx context.Context, intakeGroupID string) ([]Material, error)
		Delete(ctx context.Context, ids ...string) error
		// DownloadURL signs a GET URL for the material's object.
		DownloadURL(ctx context.Context, id string) (DownloadTicket, error)
	}

	service struct {
		repo   Repository
		signer URLSigner
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, signer URLSigner) *service {
	return &service{repo: repo, signer: signer}
}

func (svc *service) RequestUpload(_ context.Context, ur UploadRequest) (UploadTicket, error) {
	key := objectKey(ur.Filename)
	u, expiresAt, err := svc.signer.SignedURL(http.MethodPut, key)
	if err != nil {
		return UploadTicket{}, pkgerrors.Wrap(err, "signing upload URL")
	}
	return UploadTicket{ObjectKey: key, URL: u, ExpiresAt: expiresAt}, nil
}

func (svc *service) Create(ctx context.Context, nm NewMaterial, uploadedBy string) (Material, error) {
	now := nowFunc().UTC()
	m := Material{
		ID:             uuid.New().String(),
		Title:          nm.Title,
		Description:    nm.Description,
		ObjectKey:      nm.ObjectKey,
		ContentType:    nm.ContentType,
		Size:           nm.Size,
		IntakeGroupIDs: nm.IntakeGroupIDs,
		UploadedBy:     uploadedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateMaterial(ctx, m)
}

func (svc *service) GetByID(ctx context.Context, id string) (Material, error) {
	return svc.repo.GetMaterialByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, intakeGroupID string) ([]Material, error) {
	return svc.repo.QueryMaterials(ctx, intakeGroupID)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteMaterialsByID(ctx, ids...)
}

func (svc *service) DownloadURL(ctx context.Context, id string) (DownloadTicket, error) {
	m, err := svc.repo.GetMaterialByID(ctx, id)
	if err != nil {
		return DownloadTicket{}, err
	}
	u, expiresAt, err := svc.signer.SignedURL(http.MethodGet, m.ObjectKey)
	if err != nil {
		return DownloadTicket{}, pkgerrors.Wrap(err, "signing download URL")
	}
	return DownloadTicket{URL: u, ExpiresAt: expiresAt}, nil
}

// objectKey namespaces uploads by a random id, keeping only a safe version of
// the original extension.
func objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return "materials/" + uuid.New().String() + ext
}
