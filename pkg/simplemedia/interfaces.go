package simplemedia

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists users. CreateUser must return ErrHandleTaken when
// the handle collides, as decided by the store itself.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByHandle(ctx context.Context, handle string) (*User, error)
}

// ContentRepository persists content records.
type ContentRepository interface {
	CreateContent(ctx context.Context, content *Content) error
	GetContent(ctx context.Context, id uuid.UUID) (*Content, error)
	// UpdateContent writes content if the stored version still equals
	// expectedVersion and bumps content.Version. Otherwise it returns
	// ErrVersionConflict, or ErrContentNotFound when the row is gone.
	UpdateContent(ctx context.Context, content *Content, expectedVersion int) error
	// DeleteContent removes the record and returns it as it was.
	DeleteContent(ctx context.Context, id uuid.UUID) (*Content, error)
	ListContent(ctx context.Context, req ListContentRequest) ([]*Content, error)
}

// BlobStore is implemented by object storage backends. Missing objects are
// reported with an error matching ErrNotFound.
type BlobStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, params UploadParams) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	GetObjectMeta(ctx context.Context, key string) (*ObjectMeta, error)
	// GetDownloadURL returns a URL granting read access to key for ttl.
	GetDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Pinger is implemented by dependencies that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventSink receives content lifecycle events
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// OrphanRecorder receives objects that compensation failed to delete
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, orphan Orphan) error
}

// KeyGenerator names new objects. Every call must return a fresh key.
type KeyGenerator interface {
	MediaKey(ownerID uuid.UUID, contentType, ext string) string
	ThumbnailKey(ownerID uuid.UUID, ext string) string
}
