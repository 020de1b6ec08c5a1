package simplemedia

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// ContentType is the media category of a content record
type ContentType string

const (
	ContentTypeVideo ContentType = "video"
	ContentTypeAudio ContentType = "audio"
)

// Valid reports whether t is a supported content type.
func (t ContentType) Valid() bool {
	return t == ContentTypeVideo || t == ContentTypeAudio
}

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           uuid.UUID `json:"id"`
	Handle       string    `json:"handle"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Content is the catalogue record for one media item.
type Content struct {
	ID           uuid.UUID   `json:"id"`
	OwnerID      uuid.UUID   `json:"owner_id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	ContentType  ContentType `json:"content_type"`
	Duration     float64     `json:"duration"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	ThumbnailKey string      `json:"-"`
	StorageKey   string      `json:"-"`
	MimeType     string      `json:"mime_type"`
	Size         int64       `json:"size"`
	Version      int         `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasThumbnail reports whether the record references any thumbnail.
func (c *Content) HasThumbnail() bool {
	return c.ThumbnailKey != "" || c.ThumbnailURL != ""
}

// ObjectMeta describes an object held by a BlobStore
type ObjectMeta struct {
	Key       string
	Size      int64
	MimeType  string
	ETag      string
	UpdatedAt time.Time
}

// UploadParams carries object attributes to a BlobStore. Size is -1 when unknown.
type UploadParams struct {
	MimeType string
	Size     int64
}

// Upload is a byte stream supplied by a caller together with its attributes.
type Upload struct {
	Body     io.Reader
	Size     int64
	MimeType string
	FileName string
}

// CreateContentRequest contains parameters for creating a content record
type CreateContentRequest struct {
	OwnerID      uuid.UUID
	Title        string
	Description  string
	ContentType  ContentType
	Duration     float64
	ThumbnailURL string
	Media        Upload
	Thumbnail    *Upload
}

// UpdateContentRequest contains a partial update. Nil fields are left unchanged.
type UpdateContentRequest struct {
	ID           uuid.UUID
	CallerID     uuid.UUID
	Title        *string
	Description  *string
	ContentType  *ContentType
	Duration     *float64
	ThumbnailURL *string
	Media        *Upload
	Thumbnail    *Upload
}

// ListContentRequest filters and pages content listings
type ListContentRequest struct {
	OwnerID     *uuid.UUID
	ContentType ContentType
	Limit       int
	Offset      int
}

// Token is an issued access token
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      uuid.UUID `json:"user_id"`
}

// DeliveryDescriptor tells a client where and until when it may fetch media.
type DeliveryDescriptor struct {
	ContentID    uuid.UUID   `json:"content_id"`
	URL          string      `json:"url"`
	ExpiresAt    time.Time   `json:"expires_at"`
	ContentType  ContentType `json:"content_type"`
	MimeType     string      `json:"mime_type"`
	Duration     float64     `json:"duration"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
}

// DeliveryStream is an open handle on a content's media bytes. Callers close Body.
type DeliveryStream struct {
	Body        io.ReadCloser
	Size        int64
	MimeType    string
	ContentType ContentType
	Duration    float64
}

// Orphan is an object that could not be removed after its record was
// rolled back or deleted.
type Orphan struct {
	Key        string    `json:"key"`
	ContentID  uuid.UUID `json:"content_id"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Orphan reasons
const (
	OrphanCreateRollback = "create_rollback"
	OrphanUpdateRollback = "update_rollback"
	OrphanReplaced       = "replaced"
	OrphanContentDeleted = "content_deleted"
)

// EventType names a content lifecycle event
type EventType string

const (
	EventContentCreated EventType = "content.created"
	EventContentUpdated EventType = "content.updated"
	EventContentDeleted EventType = "content.deleted"
)

// Event is emitted after a content write has committed
type Event struct {
	Type        EventType   `json:"type"`
	ContentID   uuid.UUID   `json:"content_id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	ContentType ContentType `json:"content_type"`
	At          time.Time   `json:"at"`
}
