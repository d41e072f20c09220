package material

import (
	"errors"
	"time"

	"github.com/elimuhq/elimu/core"
)

var ErrNotFound = errors.New("Material not found")

// Material is a learning document; the bytes live in the object store under
// ObjectKey and are only reachable through pre-signed URLs.
type Material struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ObjectKey      string    `json:"-"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	IntakeGroupIDs []string  `json:"intake_group_ids,omitempty"`
	UploadedBy     string    `json:"uploaded_by"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

type NewMaterial struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	ObjectKey      string   `json:"object_key" validate:"required"`
	ContentType    string   `json:"content_type" validate:"required"`
	Size           int64    `json:"size" validate:"gte=0"`
	IntakeGroupIDs []string `json:"intake_group_ids"`
}

func (nm *NewMaterial) Validate() error {
	nm.Title = core.CleanString(nm.Title)
	return core.Validate.Struct(nm)
}

type UploadRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
}

func (ur *UploadRequest) Validate() error {
	ur.Filename = core.CleanString(ur.Filename)
	return core.Validate.Struct(ur)
}

// UploadTicket is the response to an upload request: PUT the bytes to URL,
// then register the material with ObjectKey.
type UploadTicket struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"` // UTC
}

type DownloadTicket struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"` // UTC
}
